package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/services"
	"github.com/yoockh/callbridge/internal/utils"
)

// BackendChecker reports the backend health status.
type BackendChecker interface {
	Check(ctx context.Context) (string, error)
}

// CallHandler serves the diagnostics endpoints.
type CallHandler struct {
	registry *services.CallRegistry
	logs     services.CallLogService
	backend  BackendChecker
}

// NewCallHandler builds the handler. logs and backend may be nil.
func NewCallHandler(registry *services.CallRegistry, logs services.CallLogService, backend BackendChecker) *CallHandler {
	return &CallHandler{registry: registry, logs: logs, backend: backend}
}

type ListCallsResponse struct {
	Count int                   `json:"count"`
	Calls []models.CallSnapshot `json:"calls"`
}

func (h *CallHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health reports the backend health service status.
func (h *CallHandler) Health(c *gin.Context) {
	const op = "CallHandler.Health"

	if h.backend == nil {
		c.JSON(http.StatusOK, gin.H{"backend": "UNKNOWN", "active_calls": h.registry.Len()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	st, err := h.backend.Check(ctx)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "backend unavailable", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"backend": st, "active_calls": h.registry.Len()})
}

func (h *CallHandler) List(c *gin.Context) {
	calls := h.registry.List()
	c.JSON(http.StatusOK, ListCallsResponse{Count: len(calls), Calls: calls})
}

func (h *CallHandler) Get(c *gin.Context) {
	snap, err := h.registry.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *CallHandler) History(c *gin.Context) {
	const op = "CallHandler.History"

	if h.logs == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "call history is not configured", nil))
		return
	}
	var limit int64
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "limit must be a positive integer", err))
			return
		}
		limit = n
	}

	out, err := h.logs.History(c.Request.Context(), c.Param("call_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": c.Param("call_id"), "records": out})
}
