package media

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage reports content that does not sniff as an image.
var ErrNotImage = errors.New("media: content is not an image")

// Metadata describes an uploaded object.
type Metadata struct {
	MIMEType string
	Size     int64
	Width    int
	Height   int
}

// Inspect sniffs the MIME type and, for formats the image package decodes, the pixel dimensions.
// Dimensions stay zero for formats it cannot read, such as HEIC.
func Inspect(body []byte) (Metadata, error) {
	detected := mimetype.Detect(body)
	metadata := Metadata{
		MIMEType: detected.String(),
		Size:     int64(len(body)),
	}
	if !IsImageType(metadata.MIMEType) {
		return metadata, ErrNotImage
	}
	if config, _, err := image.DecodeConfig(bytes.NewReader(body)); err == nil {
		metadata.Width = config.Width
		metadata.Height = config.Height
	}
	return metadata, nil
}
