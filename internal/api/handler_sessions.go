package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-tracking-backend/internal/model"
	"fleet-tracking-backend/internal/session"
)

// sessionFromParam resolves :id or writes a 404.
func (h *Handler) sessionFromParam(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

// OpenSession handles POST /api/sessions. Polling starts immediately.
func (h *Handler) OpenSession(c *gin.Context) {
	var opts session.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, errInvalidRequest)
		return
	}

	s, err := h.sessions.Open(opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": s.ID})
}

// GetSession returns the current view of a session.
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// CloseSession stops polling for a session.
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// BeginEdit opens the edit form of a detail session and returns the values
// it is prefilled with.
func (h *Handler) BeginEdit(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	current, err := s.BeginEdit()
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, current.Override())
}

// SaveEdit persists the submitted edits and closes the form.
func (h *Handler) SaveEdit(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	var edits model.Edits
	if err := c.ShouldBindJSON(&edits); err != nil {
		c.JSON(http.StatusBadRequest, errInvalidRequest)
		return
	}

	updated, err := s.SaveEdit(c.Request.Context(), edits)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// CancelEdit discards the edit form.
func (h *Handler) CancelEdit(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	if err := s.CancelEdit(); err != nil {
		writeSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrEditUnsupported), errors.Is(err, session.ErrNotEditing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		writeEditError(c, err)
	}
}
