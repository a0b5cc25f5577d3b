package vault

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxIdentifierLength = 190

var (
	errEmptyIdentifier   = errors.New("identifier must be non-empty")
	errIdentifierTooLong = errors.New("identifier exceeds maximum length")
)

// OwnerID identifies the account that owns a record.
type OwnerID struct {
	value string
}

func NewOwnerID(raw string) (OwnerID, error) {
	value, err := normalizeIdentifier(raw)
	if err != nil {
		return OwnerID{}, err
	}
	return OwnerID{value: value}, nil
}

func (id OwnerID) String() string {
	return id.value
}

// RecordID identifies a stored image, collection or note.
type RecordID struct {
	value string
}

func NewRecordID(raw string) (RecordID, error) {
	value, err := normalizeIdentifier(raw)
	if err != nil {
		return RecordID{}, err
	}
	return RecordID{value: value}, nil
}

func (id RecordID) String() string {
	return id.value
}

func normalizeIdentifier(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errEmptyIdentifier
	}
	if utf8.RuneCountInString(trimmed) > maxIdentifierLength {
		return "", errIdentifierTooLong
	}
	return trimmed, nil
}

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
