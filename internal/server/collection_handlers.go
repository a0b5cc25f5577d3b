package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/photovault/internal/collections"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/gin-gonic/gin"
)

type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addPhotosRequest struct {
	Photos []struct {
		FileID       string  `json:"fileId"`
		URL          string  `json:"url"`
		ThumbnailURL string  `json:"thumbnailUrl"`
		Caption      string  `json:"caption"`
		Tags         tagList `json:"tags"`
	} `json:"photos"`
}

type setCoverRequest struct {
	CoverPhotoURL string `json:"coverPhotoUrl"`
}

func (h *httpHandler) handleListCollections(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	list, err := h.collections.List(c.Request.Context(), owner)
	if err != nil {
		h.respondServiceError(c, "failed to list collections", err)
		return
	}
	payload := make([]collectionPayload, 0, len(list))
	for _, collection := range list {
		payload = append(payload, newCollectionPayload(collection))
	}
	c.JSON(http.StatusOK, gin.H{"collections": payload})
}

func (h *httpHandler) handleCreateCollection(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var request createCollectionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed collection payload")
		return
	}
	collection, err := h.collections.Create(c.Request.Context(), owner, collections.CreateInput{
		Name:        request.Name,
		Description: request.Description,
	})
	if err != nil {
		h.respondServiceError(c, "failed to create collection", err)
		return
	}
	h.publish(c, realtime.EventCollectionChanged, collection.ID)
	c.JSON(http.StatusCreated, newCollectionPayload(collection))
}

func (h *httpHandler) handleGetCollection(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	collection, err := h.collections.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.respondServiceError(c, "failed to load collection", err)
		return
	}
	c.JSON(http.StatusOK, newCollectionPayload(collection))
}

func (h *httpHandler) handleAddCollectionPhotos(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	var request addPhotosRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Photos) == 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "At least one photo is required")
		return
	}
	inputs := make([]collections.PhotoInput, 0, len(request.Photos))
	for _, photo := range request.Photos {
		fileID := strings.TrimSpace(photo.FileID)
		if err := h.media.CheckOwnership(owner.ID.String(), fileID); err != nil {
			h.respondServiceError(c, "failed to add photos", err)
			return
		}
		inputs = append(inputs, collections.PhotoInput{
			FileID:       fileID,
			URL:          photo.URL,
			ThumbnailURL: photo.ThumbnailURL,
			Caption:      photo.Caption,
			Tags:         photo.Tags,
		})
	}
	collection, err := h.collections.AddPhotos(c.Request.Context(), owner, id, inputs)
	if err != nil {
		h.respondServiceError(c, "failed to add photos", err)
		return
	}
	h.publish(c, realtime.EventCollectionChanged, collection.ID)
	c.JSON(http.StatusOK, newCollectionPayload(collection))
}

func (h *httpHandler) handleRemoveCollectionPhoto(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	fileID := strings.TrimPrefix(c.Param("fileId"), "/")
	if strings.TrimSpace(fileID) == "" {
		abortWithError(c, http.StatusBadRequest, "missing_file_id", "fileId is required")
		return
	}
	collection, err := h.collections.RemovePhoto(c.Request.Context(), owner, id, fileID)
	if err != nil {
		h.respondServiceError(c, "failed to remove photo", err)
		return
	}
	h.publish(c, realtime.EventCollectionChanged, collection.ID)
	h.forgetFile(c, owner, strings.TrimSpace(fileID))
	c.JSON(http.StatusOK, newCollectionPayload(collection))
}

func (h *httpHandler) handleSetCollectionCover(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	var request setCoverRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed cover payload")
		return
	}
	collection, err := h.collections.SetCover(c.Request.Context(), owner, id, request.CoverPhotoURL)
	if err != nil {
		h.respondServiceError(c, "failed to set cover", err)
		return
	}
	h.publish(c, realtime.EventCollectionChanged, collection.ID)
	c.JSON(http.StatusOK, newCollectionPayload(collection))
}

func (h *httpHandler) handleDeleteCollection(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	collection, err := h.collections.Delete(c.Request.Context(), owner, id)
	if err != nil {
		h.respondServiceError(c, "failed to delete collection", err)
		return
	}
	h.publish(c, realtime.EventCollectionChanged, collection.ID)
	for _, photo := range collection.Photos {
		h.forgetFile(c, owner, photo.FileID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": collection.ID})
}
