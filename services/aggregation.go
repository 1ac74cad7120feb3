package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/store"
)

const (
	DefaultAnalyticsDays = 30
	MaxAnalyticsDays     = 365

	dashboardTopN = 5
	day           = 24 * time.Hour
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidFormat    = errors.New("export format must be csv or json")
	ErrInvalidDays      = fmt.Errorf("days must be between 1 and %d", MaxAnalyticsDays)
	ErrInvalidMetadata  = errors.New("metadata must be a JSON object")
)

type DocumentVisitRepository interface {
	DocumentExists(ctx context.Context, documentID int64) (bool, error)
	Create(ctx context.Context, v *models.DocumentVisit) error
	ListForUser(ctx context.Context, userID int64, documentID *int64, since time.Time) ([]models.DocumentVisit, error)
	Anonymize(ctx context.Context, userID int64, documentID *int64) (int64, error)
	CountDocuments(ctx context.Context, userID int64, p store.Period) (int64, error)
	CountVisits(ctx context.Context, userID int64, p store.Period) (int64, error)
	TopDocuments(ctx context.Context, userID int64, since time.Time, limit int) ([]models.TopDocument, error)
	TemplateUsage(ctx context.Context, userID int64, since time.Time, limit int) ([]models.TemplateUsage, error)
}

// AggregationService answers dashboard, breakdown and export queries over
// document visits. It holds no state between calls.
type AggregationService struct {
	visits DocumentVisitRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewAggregationService(visits DocumentVisitRepository, logger *zap.Logger) *AggregationService {
	return &AggregationService{visits: visits, logger: logger, now: time.Now}
}

// CalculateGrowth is the percentage change from previous to current. With no
// previous activity any current activity counts as 100% growth.
func CalculateGrowth(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(current-previous) / float64(previous) * 100
}

// DashboardSummary runs the user's dashboard counts concurrently.
func (s *AggregationService) DashboardSummary(ctx context.Context, userID int64) (*models.DashboardSummary, error) {
	now := s.now().UTC()
	today := now.Truncate(day)
	yesterday := today.Add(-day)
	weekAgo := today.Add(-7 * day)
	monthAgo := today.Add(-30 * day)

	var overview models.DashboardOverview
	summary := &models.DashboardSummary{}
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int64, fn func(context.Context, int64, store.Period) (int64, error), p store.Period) {
		g.Go(func() error {
			n, err := fn(gctx, userID, p)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&overview.TotalDocuments, s.visits.CountDocuments, store.Period{})
	count(&overview.DocumentsToday, s.visits.CountDocuments, store.Period{From: today})
	count(&overview.DocumentsThisWeek, s.visits.CountDocuments, store.Period{From: weekAgo})
	count(&overview.TotalVisits, s.visits.CountVisits, store.Period{})
	count(&overview.VisitsToday, s.visits.CountVisits, store.Period{From: today})
	count(&overview.VisitsYesterday, s.visits.CountVisits, store.Period{From: yesterday, To: today})

	g.Go(func() error {
		docs, err := s.visits.TopDocuments(gctx, userID, monthAgo, dashboardTopN)
		summary.TopDocuments = docs
		return err
	})
	g.Go(func() error {
		usage, err := s.visits.TemplateUsage(gctx, userID, monthAgo, dashboardTopN)
		summary.TemplateUsage = usage
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard summary: %w", err)
	}

	overview.VisitGrowth = CalculateGrowth(overview.VisitsToday, overview.VisitsYesterday)
	summary.Overview = overview
	return summary, nil
}

func normalizeDays(days int) (int, error) {
	if days == 0 {
		return DefaultAnalyticsDays, nil
	}
	if days < 0 || days > MaxAnalyticsDays {
		return 0, ErrInvalidDays
	}
	return days, nil
}

func (s *AggregationService) load(ctx context.Context, filter models.VisitFilter) ([]models.DocumentVisit, int, error) {
	days, err := normalizeDays(filter.Days)
	if err != nil {
		return nil, 0, err
	}
	since := s.now().UTC().Add(-time.Duration(days) * day)
	visits, err := s.visits.ListForUser(ctx, filter.UserID, filter.DocumentID, since)
	if err != nil {
		return nil, 0, err
	}
	return visits, days, nil
}

func (s *AggregationService) VisitAnalytics(ctx context.Context, filter models.VisitFilter) (*models.VisitAnalytics, error) {
	visits, _, err := s.load(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := ProcessDocumentVisits(visits)
	return &result, nil
}

// ProcessDocumentVisits reduces a visit set to its breakdowns. The daily
// series is keyed by UTC date and sorted ascending.
func ProcessDocumentVisits(visits []models.DocumentVisit) models.VisitAnalytics {
	out := models.VisitAnalytics{
		VisitTypes:       map[string]int64{},
		DeviceBreakdown:  map[string]int64{},
		BrowserBreakdown: map[string]int64{},
		CountryBreakdown: map[string]int64{},
		DailyVisits:      []models.DailyCount{},
	}
	if len(visits) == 0 {
		return out
	}

	fingerprints := map[string]struct{}{}
	daily := map[string]int64{}
	var bounced, readingTotal int64

	for _, v := range visits {
		out.VisitTypes[v.VisitType]++
		if v.DeviceType != "" {
			out.DeviceBreakdown[v.DeviceType]++
		}
		if v.BrowserName != "" {
			out.BrowserBreakdown[v.BrowserName]++
		}
		if v.Country != nil && *v.Country != "" {
			out.CountryBreakdown[*v.Country]++
		}
		if v.DeviceFingerprint != nil && *v.DeviceFingerprint != "" {
			fingerprints[*v.DeviceFingerprint] = struct{}{}
		}
		daily[v.CreatedAt.UTC().Format(time.DateOnly)]++
		if v.Bounce {
			bounced++
		}
		if v.ReadingTimeSeconds > 0 {
			readingTotal += int64(v.ReadingTimeSeconds)
		}
	}

	total := int64(len(visits))
	out.TotalVisits = total
	out.UniqueVisitors = int64(len(fingerprints))
	out.BounceRate = float64(bounced) / float64(total) * 100
	out.AverageTimeReading = float64(readingTotal) / float64(total)

	for date, n := range daily {
		out.DailyVisits = append(out.DailyVisits, models.DailyCount{Date: date, Count: n})
	}
	sort.Slice(out.DailyVisits, func(i, j int) bool {
		return out.DailyVisits[i].Date < out.DailyVisits[j].Date
	})
	return out
}

// Export materializes the filtered visits in the requested shape. There is
// no pagination; the days bound is the only limit.
func (s *AggregationService) Export(ctx context.Context, filter models.VisitFilter, format string) (*models.ExportResult, error) {
	if format == "" {
		format = models.ExportFormatJSON
	}
	if format != models.ExportFormatCSV && format != models.ExportFormatJSON {
		return nil, ErrInvalidFormat
	}

	visits, days, err := s.load(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &models.ExportResult{Format: format, ExportDate: s.now().UTC(), PeriodDays: days}
	for _, v := range visits {
		created := v.CreatedAt.UTC().Format(time.RFC3339)
		if format == models.ExportFormatCSV {
			result.Rows = append(result.Rows, models.CSVExportRow{
				VisitID:           v.ID,
				DocumentID:        v.DocumentID,
				VisitType:         v.VisitType,
				Country:           v.Country,
				City:              v.City,
				DeviceType:        v.DeviceType,
				BrowserName:       v.BrowserName,
				OSName:            v.OSName,
				CreatedAt:         created,
				TimeReading:       v.ReadingTimeSeconds,
				Bounce:            v.Bounce,
				DeviceFingerprint: v.DeviceFingerprint,
			})
			continue
		}
		result.Visits = append(result.Visits, models.JSONExportVisit{
			VisitID:    v.ID,
			DocumentID: v.DocumentID,
			VisitType:  v.VisitType,
			VisitorInfo: models.VisitorInfo{
				Country:           v.Country,
				City:              v.City,
				DeviceType:        v.DeviceType,
				Browser:           v.BrowserName,
				OS:                v.OSName,
				DeviceFingerprint: v.DeviceFingerprint,
			},
			Engagement: models.Engagement{
				TimeReading: v.ReadingTimeSeconds,
				Bounce:      v.Bounce,
			},
			CreatedAt: created,
			Metadata:  v.Metadata,
		})
	}
	return result, nil
}

// Anonymize irreversibly scrubs visitor PII from the user's document visits
// and returns how many visits matched.
func (s *AggregationService) Anonymize(ctx context.Context, userID int64, documentID *int64) (int64, error) {
	return s.visits.Anonymize(ctx, userID, documentID)
}

// TrackDocumentVisit records one view of a document with the visitor's parsed
// client attributes.
func (s *AggregationService) TrackDocumentVisit(ctx context.Context, documentID int64, req models.DocumentVisitRequest, client ClientInfo) (*models.DocumentVisit, error) {
	if len(req.Metadata) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(req.Metadata, &obj); err != nil {
			return nil, ErrInvalidMetadata
		}
	}

	exists, err := s.visits.DocumentExists(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDocumentNotFound
	}

	visit := &models.DocumentVisit{
		DocumentID:         documentID,
		VisitType:          req.VisitType,
		IPAddress:          optional(client.IP),
		UserAgent:          optional(client.UserAgent),
		Referrer:           optional(client.Referrer),
		BrowserName:        client.Browser,
		OSName:             client.OS,
		DeviceType:         client.DeviceType,
		Country:            optional(client.Country),
		ReadingTimeSeconds: req.ReadingTimeSeconds,
		Bounce:             req.Bounce,
		DeviceFingerprint:  optional(DeviceFingerprint(client.IP, client.UserAgent, client.AcceptLanguage)),
		Metadata:           req.Metadata,
	}
	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, err
	}
	s.logger.Debug("document visit tracked", zap.Int64("document_id", documentID), zap.String("visit_type", req.VisitType))
	return visit, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
