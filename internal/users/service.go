package users

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72

	opServiceNew   = "users.service.new"
	opAuthenticate = "users.authenticate"
	opSetPassword  = "users.set_password"
	opGetAccount   = "users.get"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid email or password")
	// ErrNotWhitelisted is returned when an account is requested for an identifier outside the whitelist.
	ErrNotWhitelisted = errors.New("users: identifier is not whitelisted")

	errMissingDatabase = errors.New("database handle is required")
	errMissingGate     = errors.New("whitelist is required")
)

// Whitelist decides which identifiers may hold an account.
type Whitelist interface {
	IsWhitelisted(identifier string) bool
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Whitelist  Whitelist
	IDProvider vault.IDProvider
	Clock      func() time.Time
	HashCost   int
	Logger     *zap.Logger
}

// Service stores accounts and verifies passwords.
type Service struct {
	db         *gorm.DB
	whitelist  Whitelist
	idProvider vault.IDProvider
	now        func() time.Time
	hashCost   int
	dummyHash  []byte
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Whitelist == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_whitelist", errMissingGate)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = vault.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	// Compared against when the email is unknown so both paths pay for a bcrypt comparison.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("photovault-placeholder"), hashCost)
	if err != nil {
		return nil, vault.NewServiceError(opServiceNew, "hash_cost_invalid", err)
	}
	return &Service{
		db:         cfg.Database,
		whitelist:  cfg.Whitelist,
		idProvider: idProvider,
		now:        clock,
		hashCost:   hashCost,
		dummyHash:  dummyHash,
		logger:     logger,
	}, nil
}

// Authenticate verifies the password for email and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logError(opAuthenticate, "account_select_failed", err, zap.String("email", normalized))
		return Account{}, vault.NewServiceError(opAuthenticate, "account_select_failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	loggedInAt := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", account.ID).
		Update("last_login_at", loggedInAt).Error; err != nil {
		s.logError(opAuthenticate, "last_login_update_failed", err, zap.String("account_id", account.ID))
	} else {
		account.LastLoginAt = &loggedInAt
	}
	return account, nil
}

// SetPassword creates the account for email or replaces its password.
// Only whitelisted identifiers may hold an account.
func (s *Service) SetPassword(ctx context.Context, email, displayName, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return Account{}, vault.NewServiceError(opSetPassword, "invalid_email", vault.Invalid("email is required"))
	}
	if !s.whitelist.IsWhitelisted(normalized) {
		return Account{}, vault.NewServiceError(opSetPassword, "not_whitelisted", ErrNotWhitelisted)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return Account{}, vault.NewServiceError(opSetPassword, "password_too_short", vault.Invalid("password must be at least 8 characters"))
	}
	if len(password) > maxPasswordBytes {
		return Account{}, vault.NewServiceError(opSetPassword, "password_too_long", vault.Invalid("password must be at most 72 bytes"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		s.logError(opSetPassword, "hash_failed", err)
		return Account{}, vault.NewServiceError(opSetPassword, "hash_failed", err)
	}

	var account Account
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", normalized).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			id, idErr := s.idProvider.NewID()
			if idErr != nil {
				return vault.NewServiceError(opSetPassword, "id_generation_failed", idErr)
			}
			account = Account{
				ID:           id,
				Email:        normalized,
				DisplayName:  strings.TrimSpace(displayName),
				PasswordHash: string(hash),
			}
			if createErr := tx.Create(&account).Error; createErr != nil {
				return vault.NewServiceError(opSetPassword, "account_create_failed", createErr)
			}
			return nil
		}
		if err != nil {
			return vault.NewServiceError(opSetPassword, "account_select_failed", err)
		}
		updates := map[string]interface{}{"password_hash": string(hash)}
		if trimmed := strings.TrimSpace(displayName); trimmed != "" {
			updates["display_name"] = trimmed
			account.DisplayName = trimmed
		}
		if updateErr := tx.Model(&Account{}).Where("id = ?", account.ID).Updates(updates).Error; updateErr != nil {
			return vault.NewServiceError(opSetPassword, "account_update_failed", updateErr)
		}
		account.PasswordHash = string(hash)
		return nil
	})
	if txErr != nil {
		s.logError(opSetPassword, "transaction_failed", txErr, zap.String("email", normalized))
		return Account{}, txErr
	}
	return account, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, accountID string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(accountID)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, vault.NewServiceError(opGetAccount, "not_found", vault.ErrNotFound)
	}
	if err != nil {
		s.logError(opGetAccount, "account_select_failed", err, zap.String("account_id", accountID))
		return Account{}, vault.NewServiceError(opGetAccount, "account_select_failed", err)
	}
	return account, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil || err == nil {
		return
	}
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("users service failure", allFields...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
