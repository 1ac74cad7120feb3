package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/middleware"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/services"
	"github.com/LordMirex/mytypist-backend/store"
)

type TrackHandlers struct {
	Tracker *services.Tracker
	Logger  *zap.Logger
}

func NewTrackHandlers(tracker *services.Tracker, logger *zap.Logger) *TrackHandlers {
	return &TrackHandlers{Tracker: tracker, Logger: logger}
}

// StartVisit handles POST /api/visits.
func (h *TrackHandlers) StartVisit(c *gin.Context) {
	var start models.VisitStart
	if err := c.ShouldBindJSON(&start); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	start.UserID = nil
	if id, ok := middleware.UserID(c); ok {
		start.UserID = &id
	}
	start.IPAddress = c.ClientIP()
	start.UserAgent = c.Request.UserAgent()
	if start.Referrer == "" {
		start.Referrer = c.Request.Referer()
	}

	visit, created, err := h.Tracker.StartVisit(c.Request.Context(), start)
	if errors.Is(err, services.ErrInvalidSession) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.Logger.Error("failed to start visit", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record visit"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"session_id": visit.SessionID, "created": created, "visit": visit})
}

// TrackInteraction handles POST /api/track. Expected rejections keep the
// {success, error} body and map to a matching status code.
func (h *TrackHandlers) TrackInteraction(c *gin.Context) {
	var req models.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.TrackResult{Success: false, Error: models.ErrCodeInvalidData})
		return
	}

	result, err := h.Tracker.TrackInteraction(c.Request.Context(), req)
	if err != nil {
		h.Logger.Error("failed to track interaction",
			zap.String("session_id", req.SessionID),
			zap.String("event_type", req.EventType),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error"})
		return
	}

	c.JSON(trackStatus(result), result)
}

func trackStatus(r models.TrackResult) int {
	if r.Success {
		return http.StatusOK
	}
	switch r.Error {
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeVisitNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// MarkConversion handles POST /api/visits/:session_id/conversions.
func (h *TrackHandlers) MarkConversion(c *gin.Context) {
	var req models.ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.UserID == nil {
		if id, ok := middleware.UserID(c); ok {
			req.UserID = &id
		}
	}

	visit, err := h.Tracker.MarkConversion(c.Request.Context(), c.Param("session_id"), req.Kind, req.UserID)
	switch {
	case errors.Is(err, store.ErrVisitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrCodeVisitNotFound})
	case errors.Is(err, services.ErrUnknownConversion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.Logger.Error("failed to mark conversion", zap.String("kind", req.Kind), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record conversion"})
	default:
		c.JSON(http.StatusOK, visit)
	}
}
