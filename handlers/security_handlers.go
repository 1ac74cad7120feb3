package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/security"
	"github.com/LordMirex/mytypist-backend/store"
)

type SecurityHandlers struct {
	Monitor *security.Monitor
	Logger  *zap.Logger
}

func NewSecurityHandlers(monitor *security.Monitor, logger *zap.Logger) *SecurityHandlers {
	return &SecurityHandlers{Monitor: monitor, Logger: logger}
}

func (h *SecurityHandlers) ListIncidents(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	incidents, err := h.Monitor.ListIncidents(c.Request.Context(), models.IncidentStatus(c.Query("status")), limit)
	if errors.Is(err, security.ErrInvalidStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.Logger.Error("failed to list security incidents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve incidents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

// UpdateIncidentStatus handles PATCH /api/security/incidents/:id/status.
func (h *SecurityHandlers) UpdateIncidentStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid incident id"})
		return
	}
	var req models.IncidentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	inc, err := h.Monitor.UpdateIncidentStatus(c.Request.Context(), id, req)
	switch {
	case errors.Is(err, store.ErrIncidentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, security.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, security.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.Logger.Error("failed to update incident", zap.Int64("incident_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update incident"})
	default:
		h.Logger.Info("incident status updated", zap.Int64("incident_id", id), zap.String("status", string(inc.Status)))
		c.JSON(http.StatusOK, inc)
	}
}

func (h *SecurityHandlers) BlockIP(c *gin.Context) {
	var req models.BlockIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	blocked, err := h.Monitor.Blocklist().Block(c.Request.Context(), req.IP, req.Reason, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		h.Logger.Error("failed to block ip", zap.String("ip", req.IP), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block IP"})
		return
	}
	h.Logger.Warn("ip blocked", zap.String("ip", req.IP), zap.String("reason", req.Reason), zap.Int("duration_minutes", req.DurationMinutes))
	c.JSON(http.StatusCreated, blocked)
}

func (h *SecurityHandlers) UnblockIP(c *gin.Context) {
	ip := c.Param("ip")
	removed, err := h.Monitor.Blocklist().Unblock(c.Request.Context(), ip)
	if err != nil {
		h.Logger.Error("failed to unblock ip", zap.String("ip", ip), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unblock IP"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "IP is not blocked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ip": ip})
}
