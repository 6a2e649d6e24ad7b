package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hrchat/internal/chat"
	"hrchat/internal/cleanup"
	"hrchat/internal/config"
	"hrchat/internal/extract"
	"hrchat/internal/filestore"
	"hrchat/internal/metrics"
	"hrchat/internal/ratelimit"
	"hrchat/internal/session"
)

const upstreamUnavailableMsg = "The assistant is temporarily unavailable. Please try again."

// Handler wires HTTP routes to the chat orchestrator and its stores.
type Handler struct {
	orch     *chat.Orchestrator
	registry *session.Registry
	files    *filestore.Store
	sweeper  *cleanup.Sweeper
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	limits   config.LimitsConfig
}

// NewHandler constructs a Handler instance. metrics may be nil in tests.
func NewHandler(orch *chat.Orchestrator, registry *session.Registry, files *filestore.Store, sweeper *cleanup.Sweeper, limiter *ratelimit.Limiter, m *metrics.Metrics, limits config.LimitsConfig) *Handler {
	return &Handler{
		orch:     orch,
		registry: registry,
		files:    files,
		sweeper:  sweeper,
		limiter:  limiter,
		metrics:  m,
		limits:   limits,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat", h.limiter.Middleware("chat", h.limits.ChatPerMinute), h.postChat)
	api.POST("/new-conversation", h.limiter.Middleware("reset", h.limits.ResetPerMinute), h.newConversation)
	api.POST("/upload", h.limiter.Middleware("upload", h.limits.GlobalPerMinute), h.uploadFile)
	api.GET("/files", h.listFiles)
	api.DELETE("/files", h.deleteFile)
	api.POST("/clear-files", h.clearFiles)
	api.POST("/cleanup", h.beaconCleanup)
	api.POST("/admin/sweep", h.adminSweep)
	api.GET("/health", h.health)
	api.GET("/debug/sessions", h.debugSessions)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := h.orch.Handle(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		h.countChat("error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     upstreamUnavailableMsg,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	h.countChat("ok")
	if h.metrics != nil {
		h.metrics.ChatDuration.Observe(reply.ProcessingTime)
		h.metrics.ContextSource.WithLabelValues(reply.Source).Inc()
	}
	c.JSON(http.StatusOK, reply)
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) newConversation(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	newID, cleared := h.orch.StartNew(req.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"session_id":    newID,
		"files_cleared": cleared,
		"message":       "New conversation started",
	})
}

func (h *Handler) uploadFile(c *gin.Context) {
	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	name := filepath.Base(file.Filename)
	if err := h.files.Validate(name, file.Size); err != nil {
		h.rejectUpload(c, err)
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, h.limits.MaxUploadBytes+1))
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	text, err := extract.Text(name, data)
	if err != nil {
		h.countUpload("error")
		if errors.Is(err, extract.ErrNoText) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no readable text found in the document"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read the document, it may be corrupted"})
		return
	}

	stored, err := h.files.Store(sessionID, name, file.Size, text)
	if err != nil {
		h.rejectUpload(c, err)
		return
	}
	h.countUpload("ok")
	c.JSON(http.StatusOK, gin.H{
		"message":     "File uploaded successfully",
		"filename":    stored.Name,
		"size":        stored.Size,
		"files_count": h.files.Count(sessionID),
	})
}

// rejectUpload maps a store validation failure to its HTTP response.
func (h *Handler) rejectUpload(c *gin.Context, err error) {
	h.countUpload("rejected")
	var verr *filestore.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "reason": verr.Reason})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
}

func (h *Handler) listFiles(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	files := h.files.List(sessionID)
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

func (h *Handler) deleteFile(c *gin.Context) {
	sessionID := c.Query("session_id")
	filename := c.Query("filename")
	if sessionID == "" || filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and filename are required"})
		return
	}
	if err := h.files.Remove(sessionID, filename); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File removed", "files_count": h.files.Count(sessionID)})
}

func (h *Handler) clearFiles(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	cleared := h.files.Clear(req.SessionID)
	c.JSON(http.StatusOK, gin.H{"message": "Files cleared", "files_cleared": cleared})
}

// beaconCleanup serves navigator.sendBeacon on page unload. The browser never
// reads the response and may have already navigated away, so this always
// acknowledges with no content.
func (h *Handler) beaconCleanup(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.SessionID != "" {
		h.orch.Discard(req.SessionID)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminSweep(c *gin.Context) {
	sessions, files := h.sweeper.SweepNow()
	c.JSON(http.StatusOK, gin.H{"sessions_removed": sessions, "files_removed": files})
}

func (h *Handler) health(c *gin.Context) {
	status := h.orch.Health(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     healthWord(status.Healthy),
		"completion": status.Completion,
		"search":     status.Search,
		"sessions":   h.registry.Len(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func healthWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded"
}

func (h *Handler) debugSessions(c *gin.Context) {
	stats := h.registry.AllStats()
	c.JSON(http.StatusOK, gin.H{"sessions": stats, "count": len(stats)})
}

func (h *Handler) countChat(status string) {
	if h.metrics != nil {
		h.metrics.ChatRequests.WithLabelValues(status).Inc()
	}
}

func (h *Handler) countUpload(status string) {
	if h.metrics != nil {
		h.metrics.Uploads.WithLabelValues(status).Inc()
	}
}
