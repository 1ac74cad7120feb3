package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/utils"
)

const statsTimeout = 10 * time.Second

var knownEventTypes = map[string]bool{
	models.EventPageView:            true,
	models.EventTemplateInteraction: true,
	models.EventFormInteraction:     true,
	models.EventScroll:              true,
}

// EventStats is the read side of the interaction event log.
type EventStats interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventType string) ([]models.EventTypeCountByTime, error)
	GetTopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
	GetAverageDuration(ctx context.Context, eventType string, start, end time.Time) (float64, error)
}

type StatsHandlers struct {
	Events EventStats
	Logger *zap.Logger
}

func NewStatsHandlers(events EventStats, logger *zap.Logger) *StatsHandlers {
	return &StatsHandlers{Events: events, Logger: logger}
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return
	}
	start, end, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	results, err := h.Events.GetEventCountsOverTime(ctx, interval, start, end, c.Query("eventType"))
	if err != nil {
		h.Logger.Error("failed to get event counts over time", zap.String("interval", interval), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopPages(c *gin.Context) {
	start, end, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var limit uint64 = 10
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 100"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	results, err := h.Events.GetTopPages(ctx, start, end, limit)
	if err != nil {
		h.Logger.Error("failed to get top pages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top pages"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetAverageDuration(c *gin.Context) {
	eventType := c.Query("eventType")
	if eventType != "" && !knownEventTypes[eventType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown eventType"})
		return
	}
	start, end, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	avg, err := h.Events.GetAverageDuration(ctx, eventType, start, end)
	if err != nil {
		h.Logger.Error("failed to get average duration", zap.String("event_type", eventType), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average duration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"eventType":         eventType,
		"startDate":         start.Format(time.RFC3339),
		"endDate":           end.Format(time.RFC3339),
		"averageDurationMs": avg,
	})
}
