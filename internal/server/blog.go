package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListEntries(c *gin.Context) {
	entries, err := h.blog.ListEntries(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, newEntryPayload(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": payload})
}

func (h *httpHandler) handleEntryDetails(c *gin.Context) {
	entryID, ok := pathID(c)
	if !ok {
		return
	}
	details, err := h.blog.EntryDetails(c.Request.Context(), entryID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEntryDetailsPayload(details))
}

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	entry, err := h.blog.CreateEntry(c.Request.Context(), actor, values)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newEntryPayload(entry))
}

func (h *httpHandler) handleEditEntry(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	entry, err := h.blog.EditEntry(c.Request.Context(), actor, entryID, values)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	comment, err := h.blog.AddComment(c.Request.Context(), actor, entryID, values)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCommentPayload(comment))
}

func (h *httpHandler) handleEditComment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	commentID, ok := pathID(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	comment, err := h.blog.EditComment(c.Request.Context(), actor, commentID, values)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentPayload(comment))
}
