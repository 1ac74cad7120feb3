package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/cache"
	"github.com/LordMirex/mytypist-backend/metrics"
	"github.com/LordMirex/mytypist-backend/models"
)

const (
	realtimeMetricsKey = "analytics:realtime_metrics"
	eventCounterPrefix = "analytics:events:"
	eventCounterTTL    = 5 * time.Minute
	activeWindow       = 5 * time.Minute
	topTemplatesLimit  = 5
)

// RealtimeStats is the store-side aggregation the realtime view falls back to.
type RealtimeStats interface {
	CountActiveSessions(ctx context.Context, since time.Time) (int64, error)
	CountConversions(ctx context.Context, since time.Time) (int64, error)
	CountPageViews(ctx context.Context, since time.Time) (int64, error)
	TopActiveTemplates(ctx context.Context, since time.Time, limit int) ([]models.ActiveTemplate, error)
}

// RealtimeService serves a short-lived cached snapshot of live activity and
// keeps per-minute event counters.
type RealtimeService struct {
	stats  RealtimeStats
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRealtimeService(stats RealtimeStats, store cache.Store, ttl time.Duration, logger *zap.Logger) *RealtimeService {
	return &RealtimeService{stats: stats, cache: store, ttl: ttl, logger: logger, now: time.Now}
}

func minuteKey(at time.Time) string {
	return eventCounterPrefix + at.UTC().Truncate(time.Minute).Format("200601021504") + ":"
}

// Bump increments the counters for the minute containing at. Failures are
// logged and dropped.
func (s *RealtimeService) Bump(ctx context.Context, eventType string, templateID *int64, at time.Time) {
	prefix := minuteKey(at)
	keys := []string{prefix + eventType}
	if templateID != nil {
		keys = append(keys, prefix+"template:"+strconv.FormatInt(*templateID, 10))
	}

	for _, key := range keys {
		if _, err := s.cache.IncrWindow(ctx, key, eventCounterTTL); err != nil {
			s.logger.Warn("failed to bump realtime counter", zap.String("key", key), zap.Error(err))
			return
		}
	}
}

// Get returns the cached snapshot when one is live, otherwise recomputes it
// from the store and caches it for the configured TTL.
func (s *RealtimeService) Get(ctx context.Context) (*models.RealtimeMetrics, error) {
	if raw, ok, err := s.cache.Get(ctx, realtimeMetricsKey); err != nil {
		metrics.CacheResults.WithLabelValues("realtime", "error").Inc()
		s.logger.Warn("realtime cache read failed", zap.Error(err))
	} else if ok {
		var cached models.RealtimeMetrics
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			metrics.CacheResults.WithLabelValues("realtime", "hit").Inc()
			cached.ServedFromCache = true
			return &cached, nil
		}
		s.logger.Warn("discarding undecodable realtime snapshot")
	} else {
		metrics.CacheResults.WithLabelValues("realtime", "miss").Inc()
	}

	snapshot, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode realtime metrics: %w", err)
	}
	if err := s.cache.Set(ctx, realtimeMetricsKey, string(payload), s.ttl); err != nil {
		s.logger.Warn("failed to cache realtime metrics", zap.Error(err))
	}
	return snapshot, nil
}

func (s *RealtimeService) compute(ctx context.Context) (*models.RealtimeMetrics, error) {
	now := s.now().UTC()
	lastMinute := now.Add(-time.Minute)
	lastActive := now.Add(-activeWindow)

	m := &models.RealtimeMetrics{Timestamp: now}
	var err error
	if m.ActiveSessions, err = s.stats.CountActiveSessions(ctx, lastActive); err != nil {
		return nil, err
	}
	if m.ConversionsPerMin, err = s.stats.CountConversions(ctx, lastMinute); err != nil {
		return nil, err
	}
	if m.PageViewsPerMin, err = s.stats.CountPageViews(ctx, lastMinute); err != nil {
		return nil, err
	}
	if m.TopActiveTemplates, err = s.stats.TopActiveTemplates(ctx, lastActive, topTemplatesLimit); err != nil {
		return nil, err
	}
	m.EventsThisMinute = s.minuteCounts(ctx, now)
	return m, nil
}

func (s *RealtimeService) minuteCounts(ctx context.Context, now time.Time) map[string]int64 {
	prefix := minuteKey(now)
	counts := map[string]int64{}
	for _, eventType := range []string{
		models.EventPageView, models.EventTemplateInteraction, models.EventFormInteraction, models.EventScroll,
	} {
		raw, ok, err := s.cache.Get(ctx, prefix+eventType)
		if err != nil || !ok {
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			counts[eventType] = n
		}
	}
	return counts
}
