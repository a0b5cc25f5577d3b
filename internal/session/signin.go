package session

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/auth"
	"github.com/MarcoPoloResearchLab/photovault/internal/users"
	"go.uber.org/zap"
)

// ErrNotWhitelisted is returned when a sign-in resolves to an identifier outside the whitelist.
var ErrNotWhitelisted = errors.New("session: identifier is not whitelisted")

// CredentialVerifier checks an email and password pair.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, email, password string) (users.Account, error)
}

// TokenMinter issues session tokens.
type TokenMinter interface {
	IssueSessionToken(ctx context.Context, principal auth.Principal) (string, int64, error)
}

// Whitelist decides which identifiers may sign in.
type Whitelist interface {
	IsWhitelisted(identifier string) bool
}

// SignInConfig wires the collaborators of a SignInService.
type SignInConfig struct {
	Whitelist   Whitelist
	Credentials CredentialVerifier
	Tokens      TokenMinter
	Registry    *Registry
	Logger      *zap.Logger
}

// Grant is the result of a successful sign-in.
type Grant struct {
	Token     string
	ExpiresIn int64
	Session   Snapshot
}

// ExpiresAt converts the grant lifetime into an absolute instant.
func (g Grant) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(g.ExpiresIn) * time.Second)
}

// SignInService checks the whitelist around credential verification and starts a session.
type SignInService struct {
	whitelist   Whitelist
	credentials CredentialVerifier
	tokens      TokenMinter
	registry    *Registry
	logger      *zap.Logger
}

func NewSignInService(cfg SignInConfig) (*SignInService, error) {
	if cfg.Whitelist == nil || cfg.Credentials == nil || cfg.Tokens == nil || cfg.Registry == nil {
		return nil, errors.New("session: sign-in requires whitelist, credentials, tokens and registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignInService{
		whitelist:   cfg.Whitelist,
		credentials: cfg.Credentials,
		tokens:      cfg.Tokens,
		registry:    cfg.Registry,
		logger:      logger,
	}, nil
}

// SignIn verifies credentials for a whitelisted email and returns a session token.
// The account returned by the credential store is checked against the whitelist a second time;
// a failure there denies the sign-in even though the password matched.
func (s *SignInService) SignIn(ctx context.Context, email, password string) (Grant, error) {
	if !s.whitelist.IsWhitelisted(email) {
		s.logger.Warn("sign-in rejected for non-whitelisted identifier", zap.String("email", auth.NormalizeIdentifier(email)))
		return Grant{}, ErrNotWhitelisted
	}

	account, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return Grant{}, err
	}
	if !s.whitelist.IsWhitelisted(account.Email) {
		s.logger.Warn("credential store returned non-whitelisted account",
			zap.String("account_id", account.ID),
			zap.String("email", account.Email))
		return Grant{}, ErrNotWhitelisted
	}

	snapshot, err := s.registry.Start(Owner{
		AccountID:   account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	})
	if err != nil {
		return Grant{}, err
	}

	token, expiresIn, err := s.tokens.IssueSessionToken(ctx, auth.Principal{
		AccountID:   account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		SessionID:   snapshot.ID,
	})
	if err != nil {
		_ = s.registry.SignOut(snapshot.ID)
		return Grant{}, err
	}
	return Grant{Token: token, ExpiresIn: expiresIn, Session: snapshot}, nil
}
