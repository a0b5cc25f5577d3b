package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/media"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errFileTooLarge = errors.New("file too large")

type uploadAuthorizationRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type uploadAuthorizationResponse struct {
	FileID       string            `json:"fileId"`
	UploadURL    string            `json:"uploadUrl"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	URL          string            `json:"url"`
	ThumbnailURL string            `json:"thumbnailUrl"`
	Expire       int64             `json:"expire"`
}

type deleteImageRequest struct {
	FileID string `json:"fileId"`
}

type bulkDeleteRequest struct {
	FileIDs []string `json:"fileIds"`
}

type fileOutcomePayload struct {
	FileID string        `json:"fileId"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
	Image  *imagePayload `json:"image,omitempty"`

	// rejected marks failures caused by the submitted file rather than the server.
	rejected bool
}

func (h *httpHandler) handleUploadAuthorization(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var request uploadAuthorizationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "fileName and contentType are required")
		return
	}
	if request.ContentType != "" && !media.IsImageType(request.ContentType) {
		abortWithError(c, http.StatusBadRequest, "invalid_content_type", "Only images can be uploaded")
		return
	}

	authorization, err := h.media.AuthorizeUpload(c.Request.Context(), owner.ID.String(), request.FileName, request.ContentType)
	if err != nil {
		h.respondServiceError(c, "failed to authorize upload", err)
		return
	}
	headers := make(map[string]string, len(authorization.Headers))
	for key := range authorization.Headers {
		headers[key] = authorization.Headers.Get(key)
	}
	c.JSON(http.StatusOK, uploadAuthorizationResponse{
		FileID:       authorization.FileID,
		UploadURL:    authorization.UploadURL,
		Method:       authorization.Method,
		Headers:      headers,
		URL:          authorization.URL,
		ThumbnailURL: authorization.ThumbnailURL,
		Expire:       authorization.ExpiresAt.Unix(),
	})
}

// handleDeleteImage deletes one object by file id and drops every record that referenced it.
func (h *httpHandler) handleDeleteImage(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var request deleteImageRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.FileID) == "" {
		abortWithError(c, http.StatusBadRequest, "missing_file_id", "fileId is required")
		return
	}
	fileID := strings.TrimSpace(request.FileID)
	if err := h.media.CheckOwnership(owner.ID.String(), fileID); err != nil {
		h.respondServiceError(c, "failed to delete image", err)
		return
	}

	if err := h.media.Delete(c.Request.Context(), fileID); err != nil {
		h.logger.Error("failed to delete media object", zap.Error(err), zap.String("file_id", fileID))
		captureException(c, err)
		abortWithError(c, http.StatusInternalServerError, "delete_failed", "Failed to delete image")
		return
	}
	h.forgetFile(c, owner, fileID)
	c.JSON(http.StatusOK, gin.H{"success": true, "fileId": fileID})
}

func (h *httpHandler) handleBulkDelete(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var request bulkDeleteRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.FileIDs) == 0 {
		abortWithError(c, http.StatusBadRequest, "missing_file_ids", "fileIds is required")
		return
	}

	results := make([]fileOutcomePayload, 0, len(request.FileIDs))
	owned := make([]string, 0, len(request.FileIDs))
	seen := make(map[string]struct{}, len(request.FileIDs))
	for _, raw := range request.FileIDs {
		fileID := strings.TrimSpace(raw)
		if _, duplicate := seen[fileID]; duplicate {
			continue
		}
		seen[fileID] = struct{}{}
		if err := h.media.CheckOwnership(owner.ID.String(), fileID); err != nil {
			results = append(results, fileOutcomePayload{FileID: fileID, Error: err.Error()})
			continue
		}
		owned = append(owned, fileID)
	}

	for _, outcome := range h.media.DeleteMany(c.Request.Context(), owned) {
		if outcome.Err != nil {
			h.logger.Error("failed to delete media object", zap.Error(outcome.Err), zap.String("file_id", outcome.FileID))
			results = append(results, fileOutcomePayload{FileID: outcome.FileID, Error: "delete failed"})
			continue
		}
		h.forgetFile(c, owner, outcome.FileID)
		results = append(results, fileOutcomePayload{FileID: outcome.FileID, OK: true})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// forgetFile drops records pointing at a deleted object. Failures are logged, the object is already gone.
func (h *httpHandler) forgetFile(c *gin.Context, owner vault.Owner, fileID string) {
	ctx := c.Request.Context()
	imageIDs, err := h.gallery.ForgetFile(ctx, owner, fileID)
	if err != nil {
		h.logger.Error("failed to drop image records for deleted object", zap.Error(err), zap.String("file_id", fileID))
	} else if len(imageIDs) > 0 {
		h.publish(c, realtime.EventImageChanged, imageIDs...)
	}
	collectionIDs, err := h.collections.ForgetFile(ctx, owner, fileID)
	if err != nil {
		h.logger.Error("failed to detach deleted object from collections", zap.Error(err), zap.String("file_id", fileID))
	} else if len(collectionIDs) > 0 {
		h.publish(c, realtime.EventCollectionChanged, collectionIDs...)
	}
}

// handleUploadImages accepts one or more multipart "files" and creates a record for each.
// Shared form fields (title, tags, note, encrypt) apply to every file.
func (h *httpHandler) handleUploadImages(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Multipart form with files is required")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		abortWithError(c, http.StatusBadRequest, "missing_files", "At least one file is required")
		return
	}

	encrypt := true
	if raw := c.PostForm("encrypt"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "encrypt must be a boolean")
			return
		}
		encrypt = parsed
	}
	title := c.PostForm("title")
	tags := vault.SplitTags(c.PostForm("tags"))
	note := c.PostForm("note")

	results := make([]fileOutcomePayload, 0, len(files))
	created := make([]string, 0, len(files))
	for _, header := range files {
		outcome := h.uploadOne(c, owner, header, gallery.CreateInput{
			Title:       title,
			Tags:        tags,
			Note:        note,
			EncryptNote: encrypt,
		})
		if outcome.Image != nil {
			created = append(created, outcome.Image.ID)
		}
		results = append(results, outcome)
	}
	if len(created) > 0 {
		h.publish(c, realtime.EventImageChanged, created...)
	}

	c.JSON(uploadStatus(results, len(created)), gin.H{"results": results})
}

// uploadStatus is 200 when anything was stored, 400 when every file was rejected, 500 otherwise.
func uploadStatus(results []fileOutcomePayload, created int) int {
	if created > 0 {
		return http.StatusOK
	}
	for _, result := range results {
		if !result.rejected {
			return http.StatusInternalServerError
		}
	}
	return http.StatusBadRequest
}

func (h *httpHandler) uploadOne(c *gin.Context, owner vault.Owner, header *multipart.FileHeader, input gallery.CreateInput) fileOutcomePayload {
	body, err := readFormFile(header)
	if err != nil {
		return fileOutcomePayload{FileID: header.Filename, Error: err.Error(), rejected: errors.Is(err, errFileTooLarge)}
	}
	stored, err := h.media.Upload(c.Request.Context(), owner.ID.String(), header.Filename, body)
	if err != nil {
		rejected := errors.Is(err, media.ErrNotImage)
		if !rejected {
			h.logger.Error("failed to upload media object", zap.Error(err), zap.String("file_name", header.Filename))
		}
		return fileOutcomePayload{FileID: header.Filename, Error: err.Error(), rejected: rejected}
	}

	input.FileID = stored.FileID
	input.URL = stored.URL
	input.ThumbnailURL = stored.ThumbnailURL
	input.Size = stored.Metadata.Size
	input.MIMEType = stored.Metadata.MIMEType
	input.Width = stored.Metadata.Width
	input.Height = stored.Metadata.Height
	if strings.TrimSpace(input.Title) == "" {
		input.Title = header.Filename
	}
	image, err := h.gallery.Create(c.Request.Context(), owner, input)
	if err != nil {
		h.logger.Error("failed to record uploaded image", zap.Error(err), zap.String("file_id", stored.FileID))
		if cleanupErr := h.media.Delete(c.Request.Context(), stored.FileID); cleanupErr != nil {
			h.logger.Error("failed to remove orphaned media object", zap.Error(cleanupErr), zap.String("file_id", stored.FileID))
		}
		return fileOutcomePayload{FileID: stored.FileID, Error: err.Error()}
	}
	payload := newImagePayload(image)
	return fileOutcomePayload{FileID: stored.FileID, OK: true, Image: &payload}
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	body, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, header.Filename, maxUploadBytes)
	}
	return body, nil
}

func (h *httpHandler) handleSignedImageURL(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	ttl := h.signedURLTTL
	if raw := c.Query("expires_in"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "expires_in must be a positive number of seconds")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	image, err := h.gallery.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.respondServiceError(c, "failed to load image", err)
		return
	}
	signed, expiresAt, err := h.media.SignedURL(c.Request.Context(), image.FileID, ttl)
	if err != nil {
		h.respondServiceError(c, "failed to sign image url", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signed, "expiresAt": expiresAt.UTC()})
}
