package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/services"
)

type AnalyticsHandlers struct {
	Realtime    *services.RealtimeService
	Aggregation *services.AggregationService
	Logger      *zap.Logger
}

func NewAnalyticsHandlers(realtime *services.RealtimeService, aggregation *services.AggregationService, logger *zap.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{Realtime: realtime, Aggregation: aggregation, Logger: logger}
}

func (h *AnalyticsHandlers) RealtimeMetrics(c *gin.Context) {
	snapshot, err := h.Realtime.Get(c.Request.Context())
	if err != nil {
		h.Logger.Error("failed to compute realtime metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve realtime metrics"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *AnalyticsHandlers) Dashboard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	summary, err := h.Aggregation.DashboardSummary(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error("failed to build dashboard", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve dashboard"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *AnalyticsHandlers) filter(c *gin.Context) (models.VisitFilter, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return models.VisitFilter{}, false
	}
	days, err := queryInt(c, "days")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.VisitFilter{}, false
	}
	documentID, err := optionalInt64(c, "document_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.VisitFilter{}, false
	}
	return models.VisitFilter{UserID: userID, DocumentID: documentID, Days: days}, true
}

func (h *AnalyticsHandlers) Visits(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	result, err := h.Aggregation.VisitAnalytics(c.Request.Context(), filter)
	if h.failed(c, err, "visit analytics") {
		return
	}
	c.JSON(http.StatusOK, result)
}

// Export handles GET /api/analytics/export. With format=csv and download=true
// the rows are streamed as a CSV attachment instead of JSON.
func (h *AnalyticsHandlers) Export(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	result, err := h.Aggregation.Export(c.Request.Context(), filter, c.Query("format"))
	if h.failed(c, err, "export") {
		return
	}

	download, _ := strconv.ParseBool(c.Query("download"))
	if result.Format == models.ExportFormatCSV && download {
		h.writeCSV(c, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

var csvHeader = []string{
	"visit_id", "document_id", "visit_type", "country", "city", "device_type",
	"browser_name", "os_name", "created_at", "time_reading", "bounce", "device_fingerprint",
}

func (h *AnalyticsHandlers) writeCSV(c *gin.Context, result *models.ExportResult) {
	name := fmt.Sprintf("document-visits-%s.csv", result.ExportDate.Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(csvHeader)
	for _, r := range result.Rows {
		_ = w.Write([]string{
			strconv.FormatInt(r.VisitID, 10),
			strconv.FormatInt(r.DocumentID, 10),
			r.VisitType,
			deref(r.Country),
			deref(r.City),
			r.DeviceType,
			r.BrowserName,
			r.OSName,
			r.CreatedAt,
			strconv.Itoa(r.TimeReading),
			strconv.FormatBool(r.Bounce),
			deref(r.DeviceFingerprint),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.Logger.Warn("failed writing csv export", zap.Error(err))
	}
}

type anonymizeRequest struct {
	DocumentID *int64 `json:"document_id" binding:"omitempty,gt=0"`
}

func (h *AnalyticsHandlers) Anonymize(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req anonymizeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	n, err := h.Aggregation.Anonymize(c.Request.Context(), userID, req.DocumentID)
	if err != nil {
		h.Logger.Error("anonymization failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to anonymize visits"})
		return
	}
	h.Logger.Info("document visits anonymized", zap.Int64("user_id", userID), zap.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"success": true, "anonymized_count": n})
}

// TrackDocumentVisit handles POST /api/documents/:document_id/visits.
func (h *AnalyticsHandlers) TrackDocumentVisit(c *gin.Context) {
	documentID, err := strconv.ParseInt(c.Param("document_id"), 10, 64)
	if err != nil || documentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id must be a positive integer"})
		return
	}
	var req models.DocumentVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	visit, err := h.Aggregation.TrackDocumentVisit(c.Request.Context(), documentID, req, services.DescribeClient(c.Request, c.ClientIP()))
	switch {
	case errors.Is(err, services.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidMetadata):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.Logger.Error("failed to track document visit", zap.Int64("document_id", documentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record document visit"})
	default:
		c.JSON(http.StatusCreated, gin.H{"id": visit.ID, "created_at": visit.CreatedAt.UTC().Format(time.RFC3339)})
	}
}

// failed writes the error response for aggregation errors and reports whether it did.
func (h *AnalyticsHandlers) failed(c *gin.Context, err error, what string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, services.ErrInvalidDays), errors.Is(err, services.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.Logger.Error("aggregation failed", zap.String("query", what), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve " + what})
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
