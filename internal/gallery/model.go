package gallery

import "time"

// Image is a stored photo and its annotations.
// EncryptedNote and PlainNote are never both set.
type Image struct {
	ID            string    `gorm:"column:id;primaryKey;size:190"`
	OwnerID       string    `gorm:"column:owner_id;size:190;not null;index:idx_images_owner_created,priority:1;uniqueIndex:idx_images_owner_file,priority:1"`
	FileID        string    `gorm:"column:file_id;size:512;not null;uniqueIndex:idx_images_owner_file,priority:2"`
	URL           string    `gorm:"column:url;size:2048;not null"`
	ThumbnailURL  string    `gorm:"column:thumbnail_url;size:2048"`
	Title         string    `gorm:"column:title;size:512"`
	Tags          []string  `gorm:"column:tags;type:text;serializer:json"`
	EncryptedNote string    `gorm:"column:encrypted_note;type:text"`
	PlainNote     string    `gorm:"column:plain_note;type:text"`
	Size          int64     `gorm:"column:size"`
	MIMEType      string    `gorm:"column:mime_type;size:128"`
	Width         int       `gorm:"column:width"`
	Height        int       `gorm:"column:height"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_images_owner_created,priority:2"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName exposes the table backing images.
func (Image) TableName() string {
	return "images"
}

// HasNote reports whether any note is attached.
func (i Image) HasNote() bool {
	return i.EncryptedNote != "" || i.PlainNote != ""
}
