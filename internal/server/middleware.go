package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/photovault/internal/auth"
	"github.com/MarcoPoloResearchLab/photovault/internal/session"
	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// authorizeRequest is the gate in front of every protected route. The token must validate, its
// session must be live, and the session's email must still be whitelisted.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingSessionToken) {
			if errors.Is(err, jwt.ErrTokenExpired) {
				h.logger.Info("token validation failed", zap.Error(err))
			} else {
				h.logger.Warn("token validation failed", zap.Error(err))
			}
		}
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "Sign in to continue")
		return
	}

	snapshot, err := h.sessions.Lookup(claims.SessionID)
	switch {
	case errors.Is(err, session.ErrSessionLocked):
		abortWithError(c, http.StatusLocked, "session_locked", session.LockedMessage)
		return
	case err != nil:
		abortWithError(c, http.StatusUnauthorized, "session_ended", "Sign in to continue")
		return
	}
	if snapshot.Owner.AccountID != claims.Subject {
		h.logger.Warn("token subject does not match session owner",
			zap.String("session_id", snapshot.ID),
			zap.String("subject", claims.Subject))
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "Sign in to continue")
		return
	}

	if !h.whitelist.IsWhitelisted(snapshot.Owner.Email) {
		h.logger.Warn("session owner is no longer whitelisted",
			zap.String("session_id", snapshot.ID),
			zap.String("account_id", snapshot.Owner.AccountID))
		if err := h.sessions.SignOut(snapshot.ID); err != nil && !errors.Is(err, session.ErrUnknownSession) {
			h.logger.Error("failed to sign out non-whitelisted session", zap.Error(err))
		}
		h.clearSessionCookie(c)
		abortWithError(c, http.StatusForbidden, "forbidden", "Access denied")
		return
	}

	owner, err := vault.NewOwner(snapshot.Owner.AccountID, snapshot.Owner.Email)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "Sign in to continue")
		return
	}
	c.Set(ownerContextKey, owner)
	c.Set(sessionIDContextKey, snapshot.ID)
	c.Next()
}

// recordActivity counts a request to a data route as user activity for the auto-lock timer.
func (h *httpHandler) recordActivity(c *gin.Context) {
	if _, ok := h.touchSession(c); !ok {
		return
	}
	c.Next()
}

// touchSession resets the caller's lock timer, aborting the request when the session is locked or gone.
func (h *httpHandler) touchSession(c *gin.Context) (session.Snapshot, bool) {
	snapshot, err := h.sessions.Touch(c.GetString(sessionIDContextKey))
	if err != nil {
		if errors.Is(err, session.ErrSessionLocked) {
			abortWithError(c, http.StatusLocked, "session_locked", session.LockedMessage)
			return session.Snapshot{}, false
		}
		abortWithError(c, http.StatusUnauthorized, "session_ended", "Sign in to continue")
		return session.Snapshot{}, false
	}
	return snapshot, true
}

func ownerFromContext(c *gin.Context) (vault.Owner, bool) {
	value, ok := c.Get(ownerContextKey)
	if !ok {
		return vault.Owner{}, false
	}
	owner, ok := value.(vault.Owner)
	return owner, ok
}

func requireOwner(c *gin.Context) (vault.Owner, bool) {
	owner, ok := ownerFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "Sign in to continue")
	}
	return owner, ok
}
