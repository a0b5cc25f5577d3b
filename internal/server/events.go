package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/MarcoPoloResearchLab/photovault/internal/session"
	"github.com/gin-gonic/gin"
)

const defaultHeartbeatInterval = 25 * time.Second

type eventPayload struct {
	EventType string    `json:"eventType"`
	SessionID string    `json:"sessionId,omitempty"`
	RecordIDs []string  `json:"recordIds,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleEvents streams the caller's realtime messages as Server-Sent Events. The stream ends
// when the client disconnects or when its own session locks or ends.
func (h *httpHandler) handleEvents(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	sessionID := c.GetString(sessionIDContextKey)
	ctx := c.Request.Context()
	stream, release := h.realtime.Subscribe(ctx, owner.ID.String())
	defer release()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Lock and end events can be dropped when the subscriber buffer is full.
			if eventType, ended := h.sessionEndedEvent(sessionID); ended {
				payload := eventPayload{
					EventType: eventType,
					SessionID: sessionID,
					Timestamp: h.clock().UTC(),
				}
				if eventType == realtime.EventSessionLocked {
					payload.Message = session.LockedMessage
				}
				c.SSEvent(eventType, payload)
				c.Writer.Flush()
				return
			}
			c.SSEvent(realtime.EventHeartbeat, eventPayload{
				EventType: realtime.EventHeartbeat,
				Timestamp: h.clock().UTC(),
			})
			c.Writer.Flush()
		case message, open := <-stream:
			if !open {
				return
			}
			payload := eventPayload{
				EventType: message.EventType,
				SessionID: message.SessionID,
				RecordIDs: message.RecordIDs,
				Timestamp: message.Timestamp,
			}
			if message.EventType == realtime.EventSessionLocked {
				payload.Message = session.LockedMessage
			}
			c.SSEvent(message.EventType, payload)
			c.Writer.Flush()
			if message.SessionID == sessionID && endsStream(message.EventType) {
				return
			}
		}
	}
}

// sessionEndedEvent reports the terminal event for a session that is no longer active.
func (h *httpHandler) sessionEndedEvent(sessionID string) (string, bool) {
	_, err := h.sessions.Lookup(sessionID)
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, session.ErrSessionLocked):
		return realtime.EventSessionLocked, true
	default:
		return realtime.EventSessionEnded, true
	}
}

func endsStream(eventType string) bool {
	return eventType == realtime.EventSessionLocked || eventType == realtime.EventSessionEnded
}
