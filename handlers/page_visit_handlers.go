package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/middleware"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/services"
)

type PageVisitHandlers struct {
	Service *services.PageVisitService
	Logger  *zap.Logger
}

func NewPageVisitHandlers(service *services.PageVisitService, logger *zap.Logger) *PageVisitHandlers {
	return &PageVisitHandlers{Service: service, Logger: logger}
}

func (h *PageVisitHandlers) Track(c *gin.Context) {
	var req models.PageVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	var userID *int64
	if id, ok := middleware.UserID(c); ok {
		userID = &id
	}

	visit, err := h.Service.Track(c.Request.Context(), req, userID, services.DescribeClient(c.Request, c.ClientIP()))
	switch {
	case errors.Is(err, services.ErrInvalidSession), errors.Is(err, services.ErrInvalidMetadata):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.Logger.Error("failed to track page visit", zap.String("session_id", req.SessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record page visit"})
	default:
		c.JSON(http.StatusCreated, gin.H{"id": visit.ID, "session_id": visit.SessionID})
	}
}

func (h *PageVisitHandlers) Analytics(c *gin.Context) {
	days, err := queryInt(c, "days")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.Service.Analytics(c.Request.Context(), days)
	if errors.Is(err, services.ErrInvalidDays) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.Logger.Error("failed to compute page visit analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve page visit analytics"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PageVisitHandlers) Session(c *gin.Context) {
	visits, err := h.Service.SessionVisits(c.Request.Context(), c.Param("session_id"))
	if errors.Is(err, services.ErrInvalidSession) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.Logger.Error("failed to list session page visits", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve page visits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visits": visits, "count": len(visits)})
}

// Mine lists the authenticated user's own page visits.
func (h *PageVisitHandlers) Mine(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	visits, err := h.Service.UserVisits(c.Request.Context(), userID, limit)
	if err != nil {
		h.Logger.Error("failed to list user page visits", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve page visits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visits": visits, "count": len(visits)})
}
