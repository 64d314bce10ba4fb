package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/binaryblob/binaryblob/internal/auth"
	"github.com/binaryblob/binaryblob/internal/blog"
	"github.com/binaryblob/binaryblob/internal/projects"
	"github.com/binaryblob/binaryblob/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const actorContextKey = "binaryblob_actor"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingActorResolver    = errors.New("actor resolver dependency required")
	errMissingTaskService      = errors.New("task service dependency required")
	errMissingBlogService      = errors.New("blog service dependency required")
)

// SessionValidator authenticates the session cookie of a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// ActorResolver maps validated claims to the acting local user.
type ActorResolver interface {
	ResolveActor(ctx context.Context, claims auth.SessionClaims) (users.Actor, error)
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	SessionValidator SessionValidator
	Actors           ActorResolver
	Tasks            *projects.Service
	Blog             *blog.Service
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router serving the blog and the task tracker.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Actors == nil {
		return nil, errMissingActorResolver
	}
	if deps.Tasks == nil {
		return nil, errMissingTaskService
	}
	if deps.Blog == nil {
		return nil, errMissingBlogService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions: deps.SessionValidator,
		actors:   deps.Actors,
		tasks:    deps.Tasks,
		blog:     deps.Blog,
		logger:   logger,
	}

	router.GET("/blog/entries", handler.handleListEntries)
	router.GET("/blog/entries/:id", handler.handleEntryDetails)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/blog/entries", handler.handleCreateEntry)
	protected.POST("/blog/entries/:id/edit", handler.handleEditEntry)
	protected.POST("/blog/entries/:id/comments", handler.handleAddComment)
	protected.POST("/blog/comments/:id/edit", handler.handleEditComment)

	protected.GET("/tasks", handler.handleListTasks)
	protected.GET("/tasks/:id", handler.handleTaskDetails)
	protected.POST("/tasks", handler.handleCreateTask)
	protected.POST("/tasks/:id/edit", handler.handleUpdateTask)
	protected.POST("/tasks/:id/advance", handler.handleAdvanceTask)
	protected.POST("/tasks/:id/rollback", handler.handleRollbackTask)
	protected.POST("/tasks/:id/notes", handler.handleAddTaskNote)

	return router, nil
}

// corsMiddleware allows the configured origins, or any origin when none are set,
// with credentials so the session cookie travels.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions SessionValidator
	actors   ActorResolver
	tasks    *projects.Service
	blog     *blog.Service
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	actor, err := h.actors.ResolveActor(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("actor resolution failed", zap.Error(err), zap.String("subject", claims.Subject))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, actor)
	c.Next()
}

func currentActor(c *gin.Context) (users.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return users.Actor{}, false
	}
	actor, ok := value.(users.Actor)
	return actor, ok
}
