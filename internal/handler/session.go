package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weibaohui/llmchats/internal/registry"
	"github.com/weibaohui/llmchats/internal/repository"
	"github.com/weibaohui/llmchats/internal/service"
	"github.com/weibaohui/llmchats/internal/transcript"
)

type SessionHandler struct {
	service *service.SessionService
}

func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.service.CreateSession(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrUnknownParticipant) || errors.Is(err, registry.ErrDuplicateLabel) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sess)
}

func (h *SessionHandler) Start(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.service.Start(sessionID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, service.ErrSessionNotRunnable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session started"})
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.service.Cancel(sessionID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, service.ErrSessionNotRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.service.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	sessions, err := h.service.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) Status(c *gin.Context) {
	sessionID := c.Param("id")

	status, err := h.service.Status(sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": status})
}

func (h *SessionHandler) Transcript(c *gin.Context) {
	turns, err := h.service.Turns(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, turns)
}

func (h *SessionHandler) Export(c *gin.Context) {
	format, err := transcript.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.service.Export(c.Param("id"), format)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, exportContentType(format), data)
}

func exportContentType(format transcript.Format) string {
	switch format {
	case transcript.FormatJSON:
		return "application/json; charset=utf-8"
	case transcript.FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

func (h *SessionHandler) Summarize(c *gin.Context) {
	// 所有字段都有默认值，允许不带请求体
	var req service.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.Summarize(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, service.ErrSessionNotFinished):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *SessionHandler) Summaries(c *gin.Context) {
	summaries, err := h.service.Summaries(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *SessionHandler) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.GetQueueStatus())
}
