package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/binaryblob/binaryblob/internal/blog"
	"github.com/binaryblob/binaryblob/internal/projects"
	"github.com/binaryblob/binaryblob/internal/serviceerror"
	"github.com/binaryblob/binaryblob/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeServiceError maps a service failure onto a status and a JSON body carrying
// the service error code.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status, label := classifyError(err)
	body := gin.H{"error": label}
	if code := serviceerror.CodeOf(err); code != "" {
		body["code"] = code
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, users.ErrPermissionDenied):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, projects.ErrTaskNotFound),
		errors.Is(err, blog.ErrEntryNotFound),
		errors.Is(err, blog.ErrCommentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, projects.ErrInvalidTask),
		errors.Is(err, projects.ErrInvalidNote),
		errors.Is(err, projects.ErrStatusNotFound),
		errors.Is(err, blog.ErrInvalidEntry),
		errors.Is(err, blog.ErrInvalidComment):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// formValues flattens a url-encoded body into single values, keeping the first
// value of repeated keys.
func formValues(c *gin.Context) (map[string]string, bool) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_form"})
		return nil, false
	}
	values := make(map[string]string, len(c.Request.PostForm))
	for key, submitted := range c.Request.PostForm {
		if len(submitted) > 0 {
			values[key] = submitted[0]
		}
	}
	return values, true
}

func pathID(c *gin.Context) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return uint(parsed), true
}

func requireActor(c *gin.Context) (users.Actor, bool) {
	actor, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}
