package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/collections"
	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/notes"
	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"github.com/gin-gonic/gin"
)

// tagList accepts either a JSON array of tags or a comma-separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = vault.SplitTags(raw)
	return nil
}

type imagePayload struct {
	ID            string    `json:"id"`
	FileID        string    `json:"fileId"`
	URL           string    `json:"url"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	Title         string    `json:"title"`
	Tags          []string  `json:"tags"`
	HasNote       bool      `json:"hasNote"`
	NoteEncrypted bool      `json:"noteEncrypted"`
	Note          string    `json:"note,omitempty"`
	Size          int64     `json:"size"`
	MIMEType      string    `json:"mimeType,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// newImagePayload never exposes ciphertext; encrypted notes are read through the reveal route.
func newImagePayload(image gallery.Image) imagePayload {
	return imagePayload{
		ID:            image.ID,
		FileID:        image.FileID,
		URL:           image.URL,
		ThumbnailURL:  image.ThumbnailURL,
		Title:         image.Title,
		Tags:          nonNilTags(image.Tags),
		HasNote:       image.HasNote(),
		NoteEncrypted: image.EncryptedNote != "",
		Note:          image.PlainNote,
		Size:          image.Size,
		MIMEType:      image.MIMEType,
		Width:         image.Width,
		Height:        image.Height,
		CreatedAt:     image.CreatedAt,
		UpdatedAt:     image.UpdatedAt,
	}
}

type collectionPhotoPayload struct {
	FileID       string    `json:"fileId"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Caption      string    `json:"caption,omitempty"`
	Tags         []string  `json:"tags"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type collectionPayload struct {
	ID            string                   `json:"id"`
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	CoverPhotoURL string                   `json:"coverPhotoUrl,omitempty"`
	Photos        []collectionPhotoPayload `json:"photos"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

func newCollectionPayload(collection collections.Collection) collectionPayload {
	photos := make([]collectionPhotoPayload, 0, len(collection.Photos))
	for _, photo := range collection.Photos {
		photos = append(photos, collectionPhotoPayload{
			FileID:       photo.FileID,
			URL:          photo.URL,
			ThumbnailURL: photo.ThumbnailURL,
			Caption:      photo.Caption,
			Tags:         nonNilTags(photo.Tags),
			UploadedAt:   photo.UploadedAt,
		})
	}
	return collectionPayload{
		ID:            collection.ID,
		Name:          collection.Name,
		Description:   collection.Description,
		CoverPhotoURL: collection.CoverPhotoURL,
		Photos:        photos,
		CreatedAt:     collection.CreatedAt,
		UpdatedAt:     collection.UpdatedAt,
	}
}

type notePayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newNotePayload(note notes.Note) notePayload {
	return notePayload{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Tags:      nonNilTags(note.Tags),
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func recordIDParam(c *gin.Context) (vault.RecordID, bool) {
	id, err := vault.NewRecordID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_id", "A valid id is required")
		return vault.RecordID{}, false
	}
	return id, true
}
