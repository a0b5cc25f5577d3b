package collections

import "time"

// Collection is a named group of photos, shown as a "memory".
// CoverPhotoURL, when set, equals the ThumbnailURL of one of Photos.
type Collection struct {
	ID            string            `gorm:"column:id;primaryKey;size:190"`
	OwnerID       string            `gorm:"column:owner_id;size:190;not null;index:idx_collections_owner_created,priority:1"`
	Name          string            `gorm:"column:name;size:256;not null"`
	Description   string            `gorm:"column:description;type:text"`
	CoverPhotoURL string            `gorm:"column:cover_photo_url;size:2048"`
	Photos        []CollectionPhoto `gorm:"foreignKey:CollectionID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_collections_owner_created,priority:2"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName exposes the table backing collections.
func (Collection) TableName() string {
	return "collections"
}

// CollectionPhoto is one photo embedded in a collection.
type CollectionPhoto struct {
	CollectionID string    `gorm:"column:collection_id;primaryKey;size:190"`
	FileID       string    `gorm:"column:file_id;primaryKey;size:512"`
	URL          string    `gorm:"column:url;size:2048;not null"`
	ThumbnailURL string    `gorm:"column:thumbnail_url;size:2048"`
	Caption      string    `gorm:"column:caption;type:text"`
	Tags         []string  `gorm:"column:tags;type:text;serializer:json"`
	Position     int       `gorm:"column:position;not null"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;not null"`
}

// TableName exposes the table backing embedded photos.
func (CollectionPhoto) TableName() string {
	return "collection_photos"
}

func (c Collection) findPhoto(fileID string) (CollectionPhoto, bool) {
	for _, photo := range c.Photos {
		if photo.FileID == fileID {
			return photo, true
		}
	}
	return CollectionPhoto{}, false
}

func (c Collection) hasThumbnail(url string) bool {
	for _, photo := range c.Photos {
		if photo.ThumbnailURL == url {
			return true
		}
	}
	return false
}
