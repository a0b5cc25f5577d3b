package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "notes.service.new"
	opCreate     = "notes.create"
	opUpdate     = "notes.update"
	opDelete     = "notes.delete"
	opList       = "notes.list"
	opTags       = "notes.tags"
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider vault.IDProvider
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider vault.IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

func (s *Service) Create(ctx context.Context, owner vault.Owner, draft Draft) (Note, error) {
	normalized, err := draft.normalize()
	if err != nil {
		return Note{}, vault.NewServiceError(opCreate, "invalid_draft", fmt.Errorf("%w: %w", vault.ErrInvalidInput, err))
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Note{}, vault.NewServiceError(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	note := Note{
		ID:        id,
		OwnerID:   owner.ID.String(),
		Title:     normalized.Title,
		Content:   normalized.Content,
		Tags:      vault.NormalizeTags(normalized.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, "note_create_failed", err, zap.String("owner_id", owner.ID.String()))
		return Note{}, vault.NewServiceError(opCreate, "note_create_failed", err)
	}
	return note, nil
}

// Update replaces the title, content and tags of an existing note.
func (s *Service) Update(ctx context.Context, owner vault.Owner, noteID NoteID, draft Draft) (Note, error) {
	normalized, err := draft.normalize()
	if err != nil {
		return Note{}, vault.NewServiceError(opUpdate, "invalid_draft", fmt.Errorf("%w: %w", vault.ErrInvalidInput, err))
	}
	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		err := tx.Where("owner_id = ? AND id = ?", owner.ID.String(), noteID.String()).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vault.NewServiceError(opUpdate, "not_found", vault.ErrNotFound)
		}
		if err != nil {
			s.logError(opUpdate, "note_select_failed", err,
				zap.String("owner_id", owner.ID.String()),
				zap.String("note_id", noteID.String()))
			return vault.NewServiceError(opUpdate, "note_select_failed", err)
		}
		existing.Title = normalized.Title
		existing.Content = normalized.Content
		existing.Tags = vault.NormalizeTags(normalized.Tags)
		existing.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpdate, "note_save_failed", err,
				zap.String("owner_id", owner.ID.String()),
				zap.String("note_id", noteID.String()))
			return vault.NewServiceError(opUpdate, "note_save_failed", err)
		}
		updated = existing
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, owner vault.Owner, noteID NoteID) error {
	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", owner.ID.String(), noteID.String()).
		Delete(&Note{})
	if result.Error != nil {
		s.logError(opDelete, "note_delete_failed", result.Error,
			zap.String("owner_id", owner.ID.String()),
			zap.String("note_id", noteID.String()))
		return vault.NewServiceError(opDelete, "note_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return vault.NewServiceError(opDelete, "not_found", vault.ErrNotFound)
	}
	return nil
}

// List returns the owner's notes, most recently updated first, optionally narrowed to tag.
func (s *Service) List(ctx context.Context, owner vault.Owner, tag string) ([]Note, error) {
	var notes []Note
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", owner.ID.String()).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&notes).Error
	if err != nil {
		s.logError(opList, "note_select_failed", err, zap.String("owner_id", owner.ID.String()))
		return nil, vault.NewServiceError(opList, "note_select_failed", err)
	}
	if tag == "" {
		return notes, nil
	}
	filtered := make([]Note, 0, len(notes))
	for _, note := range notes {
		if vault.HasTag(note.Tags, tag) {
			filtered = append(filtered, note)
		}
	}
	return filtered, nil
}

func (s *Service) Tags(ctx context.Context, owner vault.Owner) ([]string, error) {
	var notes []Note
	if err := s.db.WithContext(ctx).
		Select("tags").
		Where("owner_id = ?", owner.ID.String()).
		Find(&notes).Error; err != nil {
		s.logError(opTags, "note_select_failed", err, zap.String("owner_id", owner.ID.String()))
		return nil, vault.NewServiceError(opTags, "note_select_failed", err)
	}
	lists := make([][]string, 0, len(notes))
	for _, note := range notes {
		lists = append(lists, note.Tags)
	}
	return vault.DistinctTags(lists...), nil
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
	s.logger.Error("notes service failure", allFields...)
}
