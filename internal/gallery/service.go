package gallery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew     = "gallery.service.new"
	opCreate         = "gallery.create"
	opList           = "gallery.list"
	opGet            = "gallery.get"
	opUpdateDetails  = "gallery.update_details"
	opSetNote        = "gallery.set_note"
	opRevealNote     = "gallery.reveal_note"
	opDelete         = "gallery.delete"
	opForgetFile     = "gallery.forget_file"
	opTags           = "gallery.tags"
	maxTitleLength   = 512
	defaultListLimit = 500
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCipher   = errors.New("note cipher is required")
	errMissingMedia    = errors.New("media store is required")
)

// NoteCipher seals notes under the owner's identifier.
type NoteCipher interface {
	Encrypt(identifier, plaintext string) (string, error)
	Decrypt(identifier, ciphertext string) (string, error)
}

// MediaRemover deletes the object backing an image.
type MediaRemover interface {
	Delete(ctx context.Context, fileID string) error
}

type ServiceConfig struct {
	Database   *gorm.DB
	Cipher     NoteCipher
	Media      MediaRemover
	IDProvider vault.IDProvider
	Clock      func() time.Time
	// ListLimit caps how many images List returns. Zero uses 500.
	ListLimit int
	Logger    *zap.Logger
}

// Service manages image records. Every operation is scoped to the calling owner.
type Service struct {
	db         *gorm.DB
	cipher     NoteCipher
	media      MediaRemover
	idProvider vault.IDProvider
	clock      func() time.Time
	listLimit  int
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Cipher == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_cipher", errMissingCipher)
	}
	if cfg.Media == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_media", errMissingMedia)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = vault.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	listLimit := cfg.ListLimit
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		cipher:     cfg.Cipher,
		media:      cfg.Media,
		idProvider: idProvider,
		clock:      clock,
		listLimit:  listLimit,
		logger:     logger,
	}, nil
}

// CreateInput describes a freshly uploaded image.
type CreateInput struct {
	FileID       string
	URL          string
	ThumbnailURL string
	Title        string
	Tags         []string
	Note         string
	EncryptNote  bool
	Size         int64
	MIMEType     string
	Width        int
	Height       int
}

// Create stores a record for an uploaded object, sealing the note when requested.
func (s *Service) Create(ctx context.Context, owner vault.Owner, input CreateInput) (Image, error) {
	fileID := strings.TrimSpace(input.FileID)
	if fileID == "" {
		return Image{}, vault.NewServiceError(opCreate, "invalid_file_id", vault.Invalid("fileId is required"))
	}
	if strings.TrimSpace(input.URL) == "" {
		return Image{}, vault.NewServiceError(opCreate, "invalid_url", vault.Invalid("url is required"))
	}
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return Image{}, vault.NewServiceError(opCreate, "invalid_title", err)
	}

	encrypted, plain, err := s.sealNote(owner, input.Note, input.EncryptNote)
	if err != nil {
		s.logError(opCreate, "note_encrypt_failed", err, zap.String("owner_id", owner.ID.String()))
		return Image{}, vault.NewServiceError(opCreate, "note_encrypt_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Image{}, vault.NewServiceError(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	thumbnail := strings.TrimSpace(input.ThumbnailURL)
	if thumbnail == "" {
		thumbnail = strings.TrimSpace(input.URL)
	}
	image := Image{
		ID:            id,
		OwnerID:       owner.ID.String(),
		FileID:        fileID,
		URL:           strings.TrimSpace(input.URL),
		ThumbnailURL:  thumbnail,
		Title:         title,
		Tags:          vault.NormalizeTags(input.Tags),
		EncryptedNote: encrypted,
		PlainNote:     plain,
		Size:          input.Size,
		MIMEType:      strings.TrimSpace(input.MIMEType),
		Width:         input.Width,
		Height:        input.Height,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&image).Error; err != nil {
		s.logError(opCreate, "image_create_failed", err,
			zap.String("owner_id", owner.ID.String()),
			zap.String("file_id", fileID))
		return Image{}, vault.NewServiceError(opCreate, "image_create_failed", err)
	}
	return image, nil
}

// ListFilter narrows List. Tag matches exactly; Query matches title or tags case-insensitively.
type ListFilter struct {
	Tag   string
	Query string
}

// List returns up to the list limit of the owner's images, newest first.
// Filters are applied while scanning pages, so older matches are still found.
func (s *Service) List(ctx context.Context, owner vault.Owner, filter ListFilter) ([]Image, error) {
	tag := strings.TrimSpace(filter.Tag)
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	matched := make([]Image, 0)
	for offset := 0; len(matched) < s.listLimit; offset += s.listLimit {
		var page []Image
		err := s.db.WithContext(ctx).
			Where("owner_id = ?", owner.ID.String()).
			Order("created_at DESC").
			Order("id DESC").
			Offset(offset).
			Limit(s.listLimit).
			Find(&page).Error
		if err != nil {
			s.logError(opList, "image_select_failed", err, zap.String("owner_id", owner.ID.String()))
			return nil, vault.NewServiceError(opList, "image_select_failed", err)
		}
		for _, image := range page {
			if tag != "" && !vault.HasTag(image.Tags, tag) {
				continue
			}
			if query != "" && !matchesQuery(image, query) {
				continue
			}
			matched = append(matched, image)
			if len(matched) == s.listLimit {
				break
			}
		}
		if len(page) < s.listLimit {
			break
		}
	}
	return matched, nil
}

// Get loads one of the owner's images.
func (s *Service) Get(ctx context.Context, owner vault.Owner, id vault.RecordID) (Image, error) {
	return s.load(ctx, opGet, s.db, owner, id)
}

// DetailsUpdate changes the title and/or tags. Nil fields are left alone.
type DetailsUpdate struct {
	Title *string
	Tags  []string
	// SetTags distinguishes an explicit empty tag list from no change.
	SetTags bool
}

func (s *Service) UpdateDetails(ctx context.Context, owner vault.Owner, id vault.RecordID, update DetailsUpdate) (Image, error) {
	var image Image
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.load(ctx, opUpdateDetails, tx, owner, id)
		if err != nil {
			return err
		}
		if update.Title != nil {
			title, err := normalizeTitle(*update.Title)
			if err != nil {
				return vault.NewServiceError(opUpdateDetails, "invalid_title", err)
			}
			loaded.Title = title
		}
		if update.SetTags {
			loaded.Tags = vault.NormalizeTags(update.Tags)
		}
		loaded.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&loaded).Error; err != nil {
			s.logError(opUpdateDetails, "image_save_failed", err, zap.String("image_id", id.String()))
			return vault.NewServiceError(opUpdateDetails, "image_save_failed", err)
		}
		image = loaded
		return nil
	})
	if txErr != nil {
		return Image{}, txErr
	}
	return image, nil
}

// SetNote replaces the note. A blank note clears it.
func (s *Service) SetNote(ctx context.Context, owner vault.Owner, id vault.RecordID, note string, encrypt bool) (Image, error) {
	encrypted, plain, err := s.sealNote(owner, note, encrypt)
	if err != nil {
		s.logError(opSetNote, "note_encrypt_failed", err, zap.String("image_id", id.String()))
		return Image{}, vault.NewServiceError(opSetNote, "note_encrypt_failed", err)
	}
	var image Image
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.load(ctx, opSetNote, tx, owner, id)
		if err != nil {
			return err
		}
		loaded.EncryptedNote = encrypted
		loaded.PlainNote = plain
		loaded.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&loaded).Error; err != nil {
			s.logError(opSetNote, "image_save_failed", err, zap.String("image_id", id.String()))
			return vault.NewServiceError(opSetNote, "image_save_failed", err)
		}
		image = loaded
		return nil
	})
	if txErr != nil {
		return Image{}, txErr
	}
	return image, nil
}

// RevealNote returns the note in clear text, decrypting it under the owner's identifier.
func (s *Service) RevealNote(ctx context.Context, owner vault.Owner, id vault.RecordID) (string, error) {
	image, err := s.load(ctx, opRevealNote, s.db, owner, id)
	if err != nil {
		return "", err
	}
	if image.EncryptedNote == "" {
		return image.PlainNote, nil
	}
	note, err := s.cipher.Decrypt(owner.Email, image.EncryptedNote)
	if err != nil {
		s.logger.Warn("note decryption failed",
			zap.String("image_id", image.ID),
			zap.String("owner_id", owner.ID.String()),
			zap.Error(err))
		return "", vault.NewServiceError(opRevealNote, "decrypt_failed", err)
	}
	return note, nil
}

// Delete removes the media object and then the record. A media failure keeps the record.
func (s *Service) Delete(ctx context.Context, owner vault.Owner, id vault.RecordID) (Image, error) {
	image, err := s.load(ctx, opDelete, s.db, owner, id)
	if err != nil {
		return Image{}, err
	}
	if err := s.media.Delete(ctx, image.FileID); err != nil {
		s.logError(opDelete, "media_delete_failed", err,
			zap.String("image_id", image.ID),
			zap.String("file_id", image.FileID))
		return Image{}, vault.NewServiceError(opDelete, "media_delete_failed", err)
	}
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", owner.ID.String(), image.ID).
		Delete(&Image{}).Error; err != nil {
		s.logError(opDelete, "image_delete_failed", err, zap.String("image_id", image.ID))
		return Image{}, vault.NewServiceError(opDelete, "image_delete_failed", err)
	}
	return image, nil
}

// ForgetFile drops the owner's records that point at fileID, after the object was deleted elsewhere.
// It returns the ids of the removed records.
func (s *Service) ForgetFile(ctx context.Context, owner vault.Owner, fileID string) ([]string, error) {
	var images []Image
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND file_id = ?", owner.ID.String(), fileID).
		Find(&images).Error; err != nil {
		s.logError(opForgetFile, "image_select_failed", err, zap.String("file_id", fileID))
		return nil, vault.NewServiceError(opForgetFile, "image_select_failed", err)
	}
	if len(images) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND file_id = ?", owner.ID.String(), fileID).
		Delete(&Image{}).Error; err != nil {
		s.logError(opForgetFile, "image_delete_failed", err, zap.String("file_id", fileID))
		return nil, vault.NewServiceError(opForgetFile, "image_delete_failed", err)
	}
	ids := make([]string, 0, len(images))
	for _, image := range images {
		ids = append(ids, image.ID)
	}
	return ids, nil
}

// Tags lists the distinct tags used across the owner's images, sorted.
func (s *Service) Tags(ctx context.Context, owner vault.Owner) ([]string, error) {
	var images []Image
	if err := s.db.WithContext(ctx).
		Select("tags").
		Where("owner_id = ?", owner.ID.String()).
		Find(&images).Error; err != nil {
		s.logError(opTags, "image_select_failed", err, zap.String("owner_id", owner.ID.String()))
		return nil, vault.NewServiceError(opTags, "image_select_failed", err)
	}
	lists := make([][]string, 0, len(images))
	for _, image := range images {
		lists = append(lists, image.Tags)
	}
	return vault.DistinctTags(lists...), nil
}

func (s *Service) load(ctx context.Context, operation string, db *gorm.DB, owner vault.Owner, id vault.RecordID) (Image, error) {
	var image Image
	err := db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", owner.ID.String(), id.String()).
		Take(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Image{}, vault.NewServiceError(operation, "not_found", vault.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "image_select_failed", err,
			zap.String("owner_id", owner.ID.String()),
			zap.String("image_id", id.String()))
		return Image{}, vault.NewServiceError(operation, "image_select_failed", err)
	}
	return image, nil
}

func (s *Service) sealNote(owner vault.Owner, note string, encrypt bool) (string, string, error) {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return "", "", nil
	}
	if !encrypt {
		return "", trimmed, nil
	}
	ciphertext, err := s.cipher.Encrypt(owner.Email, trimmed)
	if err != nil {
		return "", "", err
	}
	return ciphertext, "", nil
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
	s.logger.Error("gallery service failure", allFields...)
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if len(title) > maxTitleLength {
		return "", vault.Invalid("title is too long")
	}
	return title, nil
}

func matchesQuery(image Image, query string) bool {
	if strings.Contains(strings.ToLower(image.Title), query) {
		return true
	}
	for _, tag := range image.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
