package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/photovault/internal/notes"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/gin-gonic/gin"
)

type noteRequestPayload struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Tags    tagList `json:"tags"`
}

func (p noteRequestPayload) draft() notes.Draft {
	return notes.Draft{Title: p.Title, Content: p.Content, Tags: p.Tags}
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	list, err := h.notes.List(c.Request.Context(), owner, c.Query("tag"))
	if err != nil {
		h.respondServiceError(c, "failed to list notes", err)
		return
	}
	payload := make([]notePayload, 0, len(list))
	for _, note := range list {
		payload = append(payload, newNotePayload(note))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payload})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed note payload")
		return
	}
	note, err := h.notes.Create(c.Request.Context(), owner, request.draft())
	if err != nil {
		h.respondServiceError(c, "failed to create note", err)
		return
	}
	h.publish(c, realtime.EventNoteChanged, note.ID)
	c.JSON(http.StatusCreated, newNotePayload(note))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_id", "A valid id is required")
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Malformed note payload")
		return
	}
	note, err := h.notes.Update(c.Request.Context(), owner, noteID, request.draft())
	if err != nil {
		h.respondServiceError(c, "failed to update note", err)
		return
	}
	h.publish(c, realtime.EventNoteChanged, note.ID)
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_id", "A valid id is required")
		return
	}
	if err := h.notes.Delete(c.Request.Context(), owner, noteID); err != nil {
		h.respondServiceError(c, "failed to delete note", err)
		return
	}
	h.publish(c, realtime.EventNoteChanged, noteID.String())
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleNoteTags(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	tags, err := h.notes.Tags(c.Request.Context(), owner)
	if err != nil {
		h.respondServiceError(c, "failed to list tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": nonNilTags(tags)})
}
