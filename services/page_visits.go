package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/metrics"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/utils"
)

const (
	defaultUserVisitLimit = 50
	maxUserVisitLimit     = 500
	popularPagesLimit     = 10
	defaultPageVisitDays  = 7
)

type PageVisitRepository interface {
	Track(ctx context.Context, v *models.SimplePageVisit) error
	UserVisits(ctx context.Context, userID int64, limit int) ([]models.SimplePageVisit, error)
	SessionVisits(ctx context.Context, sessionID string) ([]models.SimplePageVisit, error)
	Analytics(ctx context.Context, since time.Time, topN int) (*models.PageVisitAnalytics, error)
	CleanupOld(ctx context.Context, cutoff time.Time) (int64, error)
}

type PageVisitService struct {
	visits PageVisitRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewPageVisitService(visits PageVisitRepository, logger *zap.Logger) *PageVisitService {
	return &PageVisitService{visits: visits, logger: logger, now: time.Now}
}

func (s *PageVisitService) Track(ctx context.Context, req models.PageVisitRequest, userID *int64, client ClientInfo) (*models.SimplePageVisit, error) {
	if !utils.ValidSessionID(req.SessionID) {
		return nil, ErrInvalidSession
	}
	if len(req.Metadata) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(req.Metadata, &obj); err != nil {
			return nil, ErrInvalidMetadata
		}
	}

	visit := &models.SimplePageVisit{
		SessionID:     req.SessionID,
		UserID:        userID,
		PageURL:       utils.SanitizeInput(req.PageURL, 500),
		PageTitle:     utils.SanitizeInput(req.PageTitle, 200),
		Referrer:      utils.SanitizeInput(req.Referrer, 500),
		IPAddress:     utils.Truncate(client.IP, 45),
		UserAgent:     utils.Truncate(client.UserAgent, 1000),
		VisitDuration: req.VisitDuration,
		Metadata:      req.Metadata,
	}
	if err := s.visits.Track(ctx, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

func (s *PageVisitService) UserVisits(ctx context.Context, userID int64, limit int) ([]models.SimplePageVisit, error) {
	if limit <= 0 {
		limit = defaultUserVisitLimit
	}
	return s.visits.UserVisits(ctx, userID, min(limit, maxUserVisitLimit))
}

func (s *PageVisitService) SessionVisits(ctx context.Context, sessionID string) ([]models.SimplePageVisit, error) {
	if !utils.ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	return s.visits.SessionVisits(ctx, sessionID)
}

func (s *PageVisitService) Analytics(ctx context.Context, days int) (*models.PageVisitAnalytics, error) {
	if days == 0 {
		days = defaultPageVisitDays
	}
	if days < 0 || days > MaxAnalyticsDays {
		return nil, ErrInvalidDays
	}
	out, err := s.visits.Analytics(ctx, s.now().UTC().Add(-time.Duration(days)*day), popularPagesLimit)
	if err != nil {
		return nil, err
	}
	out.PeriodDays = days
	return out, nil
}

// CleanupOld deletes page visits older than retentionDays.
func (s *PageVisitService) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().UTC().Add(-time.Duration(retentionDays) * day)
	n, err := s.visits.CleanupOld(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RecordsCleaned.WithLabelValues("page_visits").Add(float64(n))
	s.logger.Info("old page visits removed", zap.Int64("count", n), zap.Int("retention_days", retentionDays))
	return n, nil
}
