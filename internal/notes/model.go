package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 512
)

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrMissingTitle indicates a note without a title.
	ErrMissingTitle = errors.New("notes: title is required")
	// ErrMissingContent indicates a note without content.
	ErrMissingContent = errors.New("notes: content is required")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Note is a free-text note with tags, separate from the gallery.
type Note struct {
	ID        string    `gorm:"column:id;primaryKey;size:190"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_notes_owner_updated,priority:1"`
	Title     string    `gorm:"column:title;size:512;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	Tags      []string  `gorm:"column:tags;type:text;serializer:json"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false;index:idx_notes_owner_updated,priority:2"`
}

// TableName exposes the table backing notes.
func (Note) TableName() string {
	return "notes"
}

// Draft carries the editable fields of a note.
type Draft struct {
	Title   string
	Content string
	Tags    []string
}

func (d Draft) normalize() (Draft, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Draft{}, ErrMissingTitle
	}
	if len(title) > maxTitleLength {
		return Draft{}, fmt.Errorf("%w: exceeds %d characters", ErrMissingTitle, maxTitleLength)
	}
	content := strings.TrimSpace(d.Content)
	if content == "" {
		return Draft{}, ErrMissingContent
	}
	return Draft{Title: title, Content: content, Tags: d.Tags}, nil
}
