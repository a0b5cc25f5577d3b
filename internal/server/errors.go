package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/photovault/internal/media"
	"github.com/MarcoPoloResearchLab/photovault/internal/notecipher"
	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

func captureException(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
}

// respondServiceError maps service sentinels to statuses. Unexpected failures are logged and
// reported as 500.
func (h *httpHandler) respondServiceError(c *gin.Context, message string, err error) {
	payload := gin.H{"message": err.Error()}
	if code := vault.ErrorCode(err); code != "" {
		payload["code"] = code
	}
	var status int
	switch {
	case errors.Is(err, notecipher.ErrDecryptionFailed):
		status = http.StatusUnprocessableEntity
		payload["error"] = "decryption_failed"
		payload["message"] = notecipher.ErrDecryptionFailed.Error()
	case errors.Is(err, vault.ErrNotFound):
		status = http.StatusNotFound
		payload["error"] = "not_found"
	case errors.Is(err, vault.ErrInvalidInput),
		errors.Is(err, media.ErrInvalidFileID),
		errors.Is(err, media.ErrNotImage):
		status = http.StatusBadRequest
		payload["error"] = "invalid_request"
	case errors.Is(err, vault.ErrForbidden), errors.Is(err, media.ErrForeignFileID):
		status = http.StatusForbidden
		payload["error"] = "forbidden"
	case errors.Is(err, vault.ErrConflict):
		status = http.StatusConflict
		payload["error"] = "conflict"
	default:
		h.logger.Error(message, zap.Error(err), zap.String("path", c.FullPath()))
		captureException(c, err)
		status = http.StatusInternalServerError
		payload["error"] = "internal_error"
		payload["message"] = message
	}
	c.AbortWithStatusJSON(status, payload)
}
