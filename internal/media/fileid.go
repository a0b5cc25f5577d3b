package media

import (
	"errors"
	"path"
	"strings"
)

var (
	// ErrInvalidFileID reports a file id that is empty or malformed.
	ErrInvalidFileID = errors.New("media: invalid file id")
	// ErrForeignFileID reports a file id outside the caller's prefix.
	ErrForeignFileID = errors.New("media: file id belongs to another owner")
)

var extensionsByMIME = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/heic":    ".heic",
	"image/heif":    ".heif",
	"image/avif":    ".avif",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/svg+xml": ".svg",
}

// OwnerPrefix is the key prefix under which every object of owner is stored.
func OwnerPrefix(folder, owner string) string {
	return strings.Trim(folder, "/") + "/" + owner + "/"
}

// BuildFileID composes "<folder>/<owner>/<id><ext>".
func BuildFileID(folder, owner, id, ext string) string {
	return OwnerPrefix(folder, owner) + id + ext
}

// CheckOwnership validates fileID and confirms it lives under owner's prefix.
func CheckOwnership(folder, owner, fileID string) error {
	cleaned := strings.TrimSpace(fileID)
	if cleaned == "" || strings.Contains(cleaned, "..") || path.Clean(cleaned) != cleaned {
		return ErrInvalidFileID
	}
	if owner == "" || !strings.HasPrefix(cleaned, OwnerPrefix(folder, owner)) {
		return ErrForeignFileID
	}
	if len(cleaned) == len(OwnerPrefix(folder, owner)) {
		return ErrInvalidFileID
	}
	return nil
}

// extensionFor picks a lowercase extension from the file name, falling back to the MIME type.
func extensionFor(fileName, contentType string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if isSafeExtension(ext) {
		return ext
	}
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return extensionsByMIME[strings.ToLower(base)]
}

func isSafeExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// IsImageType reports whether contentType names an image.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
