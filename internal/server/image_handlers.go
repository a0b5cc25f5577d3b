package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createImageRequest struct {
	FileID       string  `json:"fileId"`
	URL          string  `json:"url"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	Title        string  `json:"title"`
	Tags         tagList `json:"tags"`
	Note         string  `json:"note"`
	Encrypt      *bool   `json:"encrypt"`
	Size         int64   `json:"size"`
	MIMEType     string  `json:"mimeType"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

type updateImageRequest struct {
	Title *string  `json:"title"`
	Tags  *tagList `json:"tags"`
}

type setNoteRequest struct {
	Note    string `json:"note"`
	Encrypt *bool  `json:"encrypt"`
}

func (h *httpHandler) handleListImages(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	images, err := h.gallery.List(c.Request.Context(), owner, gallery.ListFilter{
		Tag:   c.Query("tag"),
		Query: c.Query("q"),
	})
	if err != nil {
		h.respondServiceError(c, "failed to list images", err)
		return
	}
	payload := make([]imagePayload, 0, len(images))
	for _, image := range images {
		payload = append(payload, newImagePayload(image))
	}
	c.JSON(http.StatusOK, gin.H{"images": payload})
}

// handleCreateImage records an object the client uploaded directly with a presigned URL.
func (h *httpHandler) handleCreateImage(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var request createImageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed image payload")
		return
	}
	fileID := strings.TrimSpace(request.FileID)
	if fileID == "" {
		abortWithError(c, http.StatusBadRequest, "missing_file_id", "fileId is required")
		return
	}
	if err := h.media.CheckOwnership(owner.ID.String(), fileID); err != nil {
		h.respondServiceError(c, "failed to create image", err)
		return
	}

	image, err := h.gallery.Create(c.Request.Context(), owner, gallery.CreateInput{
		FileID:       fileID,
		URL:          request.URL,
		ThumbnailURL: request.ThumbnailURL,
		Title:        request.Title,
		Tags:         request.Tags,
		Note:         request.Note,
		EncryptNote:  boolOrDefault(request.Encrypt, true),
		Size:         request.Size,
		MIMEType:     request.MIMEType,
		Width:        request.Width,
		Height:       request.Height,
	})
	if err != nil {
		h.respondServiceError(c, "failed to create image", err)
		return
	}
	h.publish(c, realtime.EventImageChanged, image.ID)
	c.JSON(http.StatusCreated, newImagePayload(image))
}

func (h *httpHandler) handleGetImage(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	image, err := h.gallery.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.respondServiceError(c, "failed to load image", err)
		return
	}
	c.JSON(http.StatusOK, newImagePayload(image))
}

func (h *httpHandler) handleUpdateImage(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	var request updateImageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed update payload")
		return
	}
	update := gallery.DetailsUpdate{Title: request.Title}
	if request.Tags != nil {
		update.Tags = *request.Tags
		update.SetTags = true
	}
	image, err := h.gallery.UpdateDetails(c.Request.Context(), owner, id, update)
	if err != nil {
		h.respondServiceError(c, "failed to update image", err)
		return
	}
	h.publish(c, realtime.EventImageChanged, image.ID)
	c.JSON(http.StatusOK, newImagePayload(image))
}

func (h *httpHandler) handleSetImageNote(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	var request setNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed note payload")
		return
	}
	image, err := h.gallery.SetNote(c.Request.Context(), owner, id, request.Note, boolOrDefault(request.Encrypt, true))
	if err != nil {
		h.respondServiceError(c, "failed to save note", err)
		return
	}
	h.publish(c, realtime.EventImageChanged, image.ID)
	c.JSON(http.StatusOK, newImagePayload(image))
}

func (h *httpHandler) handleRevealImageNote(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	note, err := h.gallery.RevealNote(c.Request.Context(), owner, id)
	if err != nil {
		h.respondServiceError(c, "failed to reveal note", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": note})
}

// handleDeleteImageRecord deletes the object and the record, then detaches the object from collections.
func (h *httpHandler) handleDeleteImageRecord(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	image, err := h.gallery.Delete(c.Request.Context(), owner, id)
	if err != nil {
		h.respondServiceError(c, "failed to delete image", err)
		return
	}
	h.publish(c, realtime.EventImageChanged, image.ID)
	collectionIDs, err := h.collections.ForgetFile(c.Request.Context(), owner, image.FileID)
	if err != nil {
		h.logger.Error("failed to detach deleted object from collections", zap.Error(err), zap.String("file_id", image.FileID))
	} else if len(collectionIDs) > 0 {
		h.publish(c, realtime.EventCollectionChanged, collectionIDs...)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": image.ID, "fileId": image.FileID})
}

func (h *httpHandler) handleImageTags(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	tags, err := h.gallery.Tags(c.Request.Context(), owner)
	if err != nil {
		h.respondServiceError(c, "failed to list tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": nonNilTags(tags)})
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
