package collections

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
	opServiceNew  = "collections.service.new"
	opCreate      = "collections.create"
	opList        = "collections.list"
	opGet         = "collections.get"
	opAddPhotos   = "collections.add_photos"
	opRemovePhoto = "collections.remove_photo"
	opSetCover    = "collections.set_cover"
	opDelete      = "collections.delete"
	opForgetFile  = "collections.forget_file"

	maxNameLength = 256
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingMedia    = errors.New("media store is required")
)

// MediaRemover deletes the object backing a photo.
type MediaRemover interface {
	Delete(ctx context.Context, fileID string) error
}

type ServiceConfig struct {
	Database   *gorm.DB
	Media      MediaRemover
	IDProvider vault.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages the owner's collections.
type Service struct {
	db         *gorm.DB
	media      MediaRemover
	idProvider vault.IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, vault.NewServiceError(opServiceNew, "missing_database", errMissingDatabase)
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
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		media:      cfg.Media,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// CreateInput names a new collection.
type CreateInput struct {
	Name        string
	Description string
}

func (s *Service) Create(ctx context.Context, owner vault.Owner, input CreateInput) (Collection, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Collection{}, vault.NewServiceError(opCreate, "invalid_name", vault.Invalid("name is required"))
	}
	if len(name) > maxNameLength {
		return Collection{}, vault.NewServiceError(opCreate, "invalid_name", vault.Invalid("name is too long"))
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Collection{}, vault.NewServiceError(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	collection := Collection{
		ID:          id,
		OwnerID:     owner.ID.String(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Photos:      []CollectionPhoto{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&collection).Error; err != nil {
		s.logError(opCreate, "collection_create_failed", err, zap.String("owner_id", owner.ID.String()))
		return Collection{}, vault.NewServiceError(opCreate, "collection_create_failed", err)
	}
	return collection, nil
}

// List returns the owner's collections with their photos, newest first.
func (s *Service) List(ctx context.Context, owner vault.Owner) ([]Collection, error) {
	var collections []Collection
	err := s.db.WithContext(ctx).
		Preload("Photos", orderedPhotos).
		Where("owner_id = ?", owner.ID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&collections).Error
	if err != nil {
		s.logError(opList, "collection_select_failed", err, zap.String("owner_id", owner.ID.String()))
		return nil, vault.NewServiceError(opList, "collection_select_failed", err)
	}
	return collections, nil
}

func (s *Service) Get(ctx context.Context, owner vault.Owner, id vault.RecordID) (Collection, error) {
	return s.load(ctx, opGet, s.db, owner, id)
}

// PhotoInput describes a photo being added to a collection.
type PhotoInput struct {
	FileID       string
	URL          string
	ThumbnailURL string
	Caption      string
	Tags         []string
}

// AddPhotos appends photos, skipping file ids already present.
// The first photo added to an empty collection without a cover becomes the cover.
func (s *Service) AddPhotos(ctx context.Context, owner vault.Owner, id vault.RecordID, photos []PhotoInput) (Collection, error) {
	if len(photos) == 0 {
		return Collection{}, vault.NewServiceError(opAddPhotos, "invalid_photos", vault.Invalid("at least one photo is required"))
	}
	var result Collection
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collection, err := s.load(ctx, opAddPhotos, tx, owner, id)
		if err != nil {
			return err
		}
		wasEmpty := len(collection.Photos) == 0
		nextPosition := 0
		for _, photo := range collection.Photos {
			if photo.Position >= nextPosition {
				nextPosition = photo.Position + 1
			}
		}

		now := s.clock().UTC()
		added := make([]CollectionPhoto, 0, len(photos))
		for _, input := range photos {
			fileID := strings.TrimSpace(input.FileID)
			url := strings.TrimSpace(input.URL)
			if fileID == "" || url == "" {
				return vault.NewServiceError(opAddPhotos, "invalid_photo", vault.Invalid("fileId and url are required"))
			}
			if _, exists := collection.findPhoto(fileID); exists || containsFile(added, fileID) {
				continue
			}
			thumbnail := strings.TrimSpace(input.ThumbnailURL)
			if thumbnail == "" {
				thumbnail = url
			}
			added = append(added, CollectionPhoto{
				CollectionID: collection.ID,
				FileID:       fileID,
				URL:          url,
				ThumbnailURL: thumbnail,
				Caption:      strings.TrimSpace(input.Caption),
				Tags:         vault.NormalizeTags(input.Tags),
				Position:     nextPosition,
				UploadedAt:   now,
			})
			nextPosition++
		}
		if len(added) > 0 {
			if err := tx.Create(&added).Error; err != nil {
				s.logError(opAddPhotos, "photo_create_failed", err, zap.String("collection_id", collection.ID))
				return vault.NewServiceError(opAddPhotos, "photo_create_failed", err)
			}
		}

		updates := map[string]interface{}{"updated_at": now}
		if wasEmpty && collection.CoverPhotoURL == "" && len(added) > 0 {
			updates["cover_photo_url"] = added[0].ThumbnailURL
		}
		if err := tx.Model(&Collection{}).Where("id = ?", collection.ID).Updates(updates).Error; err != nil {
			s.logError(opAddPhotos, "collection_update_failed", err, zap.String("collection_id", collection.ID))
			return vault.NewServiceError(opAddPhotos, "collection_update_failed", err)
		}

		reloaded, err := s.load(ctx, opAddPhotos, tx, owner, id)
		if err != nil {
			return err
		}
		result = reloaded
		return nil
	})
	if txErr != nil {
		return Collection{}, txErr
	}
	return result, nil
}

// RemovePhoto deletes the photo's media object, then drops it from the collection.
// Removing the cover photo clears the cover.
func (s *Service) RemovePhoto(ctx context.Context, owner vault.Owner, id vault.RecordID, fileID string) (Collection, error) {
	collection, err := s.load(ctx, opRemovePhoto, s.db, owner, id)
	if err != nil {
		return Collection{}, err
	}
	photo, ok := collection.findPhoto(strings.TrimSpace(fileID))
	if !ok {
		return Collection{}, vault.NewServiceError(opRemovePhoto, "photo_not_found", vault.ErrNotFound)
	}
	if err := s.media.Delete(ctx, photo.FileID); err != nil {
		s.logError(opRemovePhoto, "media_delete_failed", err,
			zap.String("collection_id", collection.ID),
			zap.String("file_id", photo.FileID))
		return Collection{}, vault.NewServiceError(opRemovePhoto, "media_delete_failed", err)
	}

	var result Collection
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.detachPhoto(tx, collection, photo); err != nil {
			return vault.NewServiceError(opRemovePhoto, "photo_delete_failed", err)
		}
		reloaded, err := s.load(ctx, opRemovePhoto, tx, owner, id)
		if err != nil {
			return err
		}
		result = reloaded
		return nil
	})
	if txErr != nil {
		s.logError(opRemovePhoto, "transaction_failed", txErr, zap.String("collection_id", collection.ID))
		return Collection{}, txErr
	}
	return result, nil
}

// SetCover points the cover at one of the collection's thumbnails. An empty URL clears it.
func (s *Service) SetCover(ctx context.Context, owner vault.Owner, id vault.RecordID, coverURL string) (Collection, error) {
	var result Collection
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collection, err := s.load(ctx, opSetCover, tx, owner, id)
		if err != nil {
			return err
		}
		cover := strings.TrimSpace(coverURL)
		if cover != "" && !collection.hasThumbnail(cover) {
			return vault.NewServiceError(opSetCover, "cover_not_in_collection", vault.Invalid("cover must be the thumbnail of a photo in the collection"))
		}
		if err := tx.Model(&Collection{}).Where("id = ?", collection.ID).Updates(map[string]interface{}{
			"cover_photo_url": cover,
			"updated_at":      s.clock().UTC(),
		}).Error; err != nil {
			s.logError(opSetCover, "collection_update_failed", err, zap.String("collection_id", collection.ID))
			return vault.NewServiceError(opSetCover, "collection_update_failed", err)
		}
		collection.CoverPhotoURL = cover
		result = collection
		return nil
	})
	if txErr != nil {
		return Collection{}, txErr
	}
	return result, nil
}

// Delete removes each photo's media object one by one, then the collection.
// On a media failure the photos already deleted are dropped and the rest stay.
func (s *Service) Delete(ctx context.Context, owner vault.Owner, id vault.RecordID) (Collection, error) {
	collection, err := s.load(ctx, opDelete, s.db, owner, id)
	if err != nil {
		return Collection{}, err
	}
	for _, photo := range collection.Photos {
		if err := s.media.Delete(ctx, photo.FileID); err != nil {
			s.logError(opDelete, "media_delete_failed", err,
				zap.String("collection_id", collection.ID),
				zap.String("file_id", photo.FileID))
			return Collection{}, vault.NewServiceError(opDelete, "media_delete_failed", err)
		}
		if err := s.detachPhoto(s.db.WithContext(ctx), collection, photo); err != nil {
			s.logError(opDelete, "photo_delete_failed", err, zap.String("file_id", photo.FileID))
			return Collection{}, vault.NewServiceError(opDelete, "photo_delete_failed", err)
		}
	}
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", owner.ID.String(), collection.ID).
		Delete(&Collection{}).Error; err != nil {
		s.logError(opDelete, "collection_delete_failed", err, zap.String("collection_id", collection.ID))
		return Collection{}, vault.NewServiceError(opDelete, "collection_delete_failed", err)
	}
	return collection, nil
}

// ForgetFile drops fileID from every collection of the owner after its object was deleted elsewhere.
// It returns the ids of the collections that changed.
func (s *Service) ForgetFile(ctx context.Context, owner vault.Owner, fileID string) ([]string, error) {
	var collections []Collection
	err := s.db.WithContext(ctx).
		Preload("Photos", orderedPhotos).
		Where("owner_id = ?", owner.ID.String()).
		Where("id IN (?)", s.db.Model(&CollectionPhoto{}).Select("collection_id").Where("file_id = ?", fileID)).
		Find(&collections).Error
	if err != nil {
		s.logError(opForgetFile, "collection_select_failed", err, zap.String("file_id", fileID))
		return nil, vault.NewServiceError(opForgetFile, "collection_select_failed", err)
	}
	changed := make([]string, 0, len(collections))
	for _, collection := range collections {
		photo, ok := collection.findPhoto(fileID)
		if !ok {
			continue
		}
		if err := s.detachPhoto(s.db.WithContext(ctx), collection, photo); err != nil {
			s.logError(opForgetFile, "photo_delete_failed", err, zap.String("collection_id", collection.ID))
			return changed, vault.NewServiceError(opForgetFile, "photo_delete_failed", err)
		}
		changed = append(changed, collection.ID)
	}
	return changed, nil
}

// detachPhoto deletes the photo row and clears the cover when it pointed at the photo.
func (s *Service) detachPhoto(db *gorm.DB, collection Collection, photo CollectionPhoto) error {
	if err := db.Where("collection_id = ? AND file_id = ?", collection.ID, photo.FileID).
		Delete(&CollectionPhoto{}).Error; err != nil {
		return err
	}
	updates := map[string]interface{}{"updated_at": s.clock().UTC()}
	if collection.CoverPhotoURL != "" && collection.CoverPhotoURL == photo.ThumbnailURL {
		updates["cover_photo_url"] = ""
	}
	return db.Model(&Collection{}).Where("id = ?", collection.ID).Updates(updates).Error
}

func (s *Service) load(ctx context.Context, operation string, db *gorm.DB, owner vault.Owner, id vault.RecordID) (Collection, error) {
	var collection Collection
	err := db.WithContext(ctx).
		Preload("Photos", orderedPhotos).
		Where("owner_id = ? AND id = ?", owner.ID.String(), id.String()).
		Take(&collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Collection{}, vault.NewServiceError(operation, "not_found", vault.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "collection_select_failed", err,
			zap.String("owner_id", owner.ID.String()),
			zap.String("collection_id", id.String()))
		return Collection{}, vault.NewServiceError(operation, "collection_select_failed", err)
	}
	return collection, nil
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
	s.logger.Error("collections service failure", allFields...)
}

func orderedPhotos(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func containsFile(photos []CollectionPhoto, fileID string) bool {
	for _, photo := range photos {
		if photo.FileID == fileID {
			return true
		}
	}
	return false
}
