package server

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/photovault/internal/autolock"
	"github.com/MarcoPoloResearchLab/photovault/internal/session"
	"github.com/MarcoPoloResearchLab/photovault/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken   string `json:"access_token"`
	ExpiresIn     int64  `json:"expires_in"`
	TokenType     string `json:"token_type"`
	SessionID     string `json:"session_id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	LockAfterSecs int64  `json:"lock_after_seconds"`
}

type sessionStatusPayload struct {
	SessionID        string `json:"session_id"`
	Email            string `json:"email"`
	DisplayName      string `json:"display_name,omitempty"`
	Locked           bool   `json:"locked"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Remaining        string `json:"remaining"`
	Message          string `json:"message,omitempty"`
}

type activityRequestPayload struct {
	Kind string `json:"kind"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}

	grant, err := h.signIn.SignIn(c.Request.Context(), request.Email, request.Password)
	switch {
	case errors.Is(err, session.ErrNotWhitelisted):
		abortWithError(c, http.StatusForbidden, "not_whitelisted", "Access denied")
		return
	case errors.Is(err, users.ErrInvalidCredentials):
		h.logger.Info("sign-in rejected", zap.String("reason", "invalid_credentials"))
		abortWithError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	case err != nil:
		h.logger.Error("sign-in failed", zap.Error(err))
		captureException(c, err)
		abortWithError(c, http.StatusInternalServerError, "sign_in_failed", "Sign-in failed")
		return
	}

	h.setSessionCookie(c, grant.Token, int(grant.ExpiresIn))
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken:   grant.Token,
		ExpiresIn:     grant.ExpiresIn,
		TokenType:     "Bearer",
		SessionID:     grant.Session.ID,
		Email:         grant.Session.Owner.Email,
		DisplayName:   grant.Session.Owner.DisplayName,
		LockAfterSecs: int64(h.sessions.Window().Seconds()),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	sessionID := c.GetString(sessionIDContextKey)
	if err := h.sessions.SignOut(sessionID); err != nil && !errors.Is(err, session.ErrUnknownSession) {
		h.logger.Error("sign-out failed", zap.Error(err), zap.String("session_id", sessionID))
	}
	h.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSessionStatus(c *gin.Context) {
	snapshot, err := h.sessions.Status(c.GetString(sessionIDContextKey))
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "session_ended", "Sign in to continue")
		return
	}
	c.JSON(http.StatusOK, newSessionStatusPayload(snapshot))
}

func (h *httpHandler) handleActivity(c *gin.Context) {
	var request activityRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Activity kind is required")
		return
	}
	if _, err := autolock.ParseActivityKind(request.Kind); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_activity", err.Error())
		return
	}
	snapshot, ok := h.touchSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionStatusPayload(snapshot))
}

func newSessionStatusPayload(snapshot session.Snapshot) sessionStatusPayload {
	payload := sessionStatusPayload{
		SessionID:        snapshot.ID,
		Email:            snapshot.Owner.Email,
		DisplayName:      snapshot.Owner.DisplayName,
		Locked:           snapshot.Locked(),
		RemainingSeconds: int64(math.Ceil(snapshot.Remaining.Seconds())),
		Remaining:        autolock.FormatRemaining(snapshot.Remaining),
	}
	if payload.Locked {
		payload.Message = session.LockedMessage
	}
	return payload
}

func (h *httpHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), token, maxAge, "/", "", h.secureCookies, true)
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), "", -1, "/", "", h.secureCookies, true)
}
