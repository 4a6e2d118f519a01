package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"codecollab/backend/internal/chathub"
	"codecollab/backend/internal/executor"
	"codecollab/backend/internal/localization"
	"codecollab/backend/internal/models"
	"codecollab/backend/internal/ratelimit"
	"codecollab/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Executor is what the HTTP layer needs from the execution service.
type Executor interface {
	Execute(ctx context.Context, code, language string) (*models.ExecutionResult, error)
	Analyze(ctx context.Context, code, language string) (*models.ExecutionResult, error)
	Languages() (run, analyze []models.Language)
}

// Handler holds the services behind the HTTP and WebSocket endpoints.
type Handler struct {
	Hub           *chathub.ManagerService
	Executor      Executor
	Storage       storage.Storage
	Localizer     *localization.Localizer
	PublicBaseURL string
	Logger        *zap.Logger
}

func NewHandler(hub *chathub.ManagerService, exec Executor, store storage.Storage, loc *localization.Localizer, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Hub:           hub,
		Executor:      exec,
		Storage:       store,
		Localizer:     loc,
		PublicBaseURL: publicBaseURL,
		Logger:        logger,
	}
}

// Register mounts every route. A nil limiter leaves execution unthrottled.
func (h *Handler) Register(r *gin.Engine, limiter ratelimit.Limiter) {
	r.GET("/health", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api")
	exec := []gin.HandlerFunc{}
	if limiter != nil {
		exec = append(exec, ratelimit.IPRateLimit(limiter, h.Logger, func(c *gin.Context, retryAfter int) string {
			return h.Localizer.Format(h.lang(c), "rate_limited", retryAfter)
		}))
	}
	api.POST("/run", append(exec, h.Run)...)
	api.POST("/analyze", append(exec, h.Analyze)...)
	api.POST("/share", h.Share)
	api.GET("/share/:id", h.GetShared)
	api.GET("/groups", h.ListGroups)
	api.POST("/groups", h.CreateGroup)
	api.GET("/languages", h.Languages)
}

type shareRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
	Title    string `json:"title"`
}

type createGroupRequest struct {
	Name string `json:"name"`
}

// Run executes submitted code. Program failures come back as 200 with
// success=false; only invalid requests are errors.
func (h *Handler) Run(c *gin.Context) {
	var req models.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "missing_fields")
		return
	}

	res, err := h.Executor.Execute(c.Request.Context(), req.Code, req.Language)
	if err != nil {
		h.execError(c, err, req.Language)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Analyze syntax-checks JavaScript and Python.
func (h *Handler) Analyze(c *gin.Context) {
	var req models.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "missing_fields")
		return
	}

	res, err := h.Executor.Analyze(c.Request.Context(), req.Code, req.Language)
	if err != nil {
		h.execError(c, err, req.Language)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) execError(c *gin.Context, err error, language string) {
	switch {
	case errors.Is(err, executor.ErrMissingInput):
		h.fail(c, http.StatusBadRequest, "missing_fields")
	case errors.Is(err, executor.ErrUnsupportedLanguage):
		h.fail(c, http.StatusBadRequest, "unsupported_language", language)
	case errors.Is(err, executor.ErrAnalyzeUnsupported):
		h.fail(c, http.StatusBadRequest, "analyze_unsupported")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.fail(c, http.StatusServiceUnavailable, "execution_busy")
	default:
		h.Logger.Error("execution request failed", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, "internal_error")
	}
}

// Share stores a snippet and returns its public link.
func (h *Handler) Share(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "missing_fields")
		return
	}

	// Stored verbatim; a snippet need not be in a runnable language.
	snippet := &models.SharedSnippet{Code: req.Code, Language: req.Language, Title: req.Title}
	if err := h.Storage.SaveSnippet(c.Request.Context(), snippet); err != nil {
		h.Logger.Error("saving snippet", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, "internal_error")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"codeId":   snippet.ID,
		"shareUrl": h.PublicBaseURL + "/share/" + snippet.ID,
	})
}

func (h *Handler) GetShared(c *gin.Context) {
	snippet, err := h.Storage.GetSnippet(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrSnippetNotFound) {
		h.fail(c, http.StatusNotFound, "snippet_not_found")
		return
	}
	if err != nil {
		h.Logger.Error("loading snippet", zap.String("id", c.Param("id")), zap.Error(err))
		h.fail(c, http.StatusInternalServerError, "internal_error")
		return
	}
	c.JSON(http.StatusOK, snippet)
}

func (h *Handler) ListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, h.Hub.Presence.ListStudyGroups())
}

// CreateGroup accepts an empty body; the name is then generated.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, http.StatusBadRequest, "invalid_request")
		return
	}
	group := h.Hub.Presence.CreateStudyGroup(req.Name)
	c.JSON(http.StatusCreated, gin.H{"groupId": group.ID, "name": group.Name})
}

func (h *Handler) Languages(c *gin.Context) {
	run, analyze := h.Executor.Languages()
	c.JSON(http.StatusOK, gin.H{"run": run, "analyze": analyze})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.Storage.Ping(c.Request.Context()); err != nil {
		h.Logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.Hub.Router.ConnectionCount(),
	})
}

func (h *Handler) lang(c *gin.Context) string {
	return h.Localizer.Match(c.GetHeader("Accept-Language"))
}

func (h *Handler) fail(c *gin.Context, status int, key string, args ...any) {
	c.AbortWithStatusJSON(status, gin.H{"error": h.Localizer.Format(h.lang(c), key, args...)})
}
