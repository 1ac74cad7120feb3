package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/metrics"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/store"
	"github.com/LordMirex/mytypist-backend/utils"
)

var (
	ErrInvalidSession    = errors.New("invalid session id")
	ErrUnknownConversion = errors.New("unknown conversion kind")
)

const asyncTimeout = 5 * time.Second

type VisitRepository interface {
	GetOrCreate(ctx context.Context, start models.VisitStart) (*models.VisitRecord, bool, error)
	GetBySession(ctx context.Context, sessionID string) (*models.VisitRecord, error)
	UpdateLocked(ctx context.Context, sessionID string, fn func(*models.VisitRecord) (bool, error)) (*models.VisitRecord, error)
}

// EventSink receives handled interactions after commit. The ClickHouse event
// log implements it.
type EventSink interface {
	InsertInteractionEvents(ctx context.Context, events []models.InteractionEvent) error
}

// Tracker owns the interaction write path: rate limit, sanitize, lock and
// mutate the visit, rescore, commit, then fan out to the realtime counters
// and event log in the background.
type Tracker struct {
	visits   VisitRepository
	limiter  *RateLimiter
	realtime *RealtimeService
	events   EventSink
	logger   *zap.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewTracker builds a Tracker. events may be nil when no event log is configured.
func NewTracker(visits VisitRepository, limiter *RateLimiter, realtime *RealtimeService, events EventSink, logger *zap.Logger) *Tracker {
	return &Tracker{
		visits:   visits,
		limiter:  limiter,
		realtime: realtime,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// StartVisit records the first page load of a session, generating a session
// id when the client did not send one.
func (t *Tracker) StartVisit(ctx context.Context, start models.VisitStart) (*models.VisitRecord, bool, error) {
	if start.SessionID == "" {
		start.SessionID = utils.GenerateSessionID()
	}
	if !utils.ValidSessionID(start.SessionID) {
		return nil, false, ErrInvalidSession
	}
	start.LandingPage = utils.SanitizeInput(start.LandingPage, 500)
	start.Referrer = utils.SanitizeInput(start.Referrer, 500)
	start.UserAgent = utils.Truncate(start.UserAgent, 1000)

	return t.visits.GetOrCreate(ctx, start)
}

// TrackInteraction applies one inbound event. Expected rejections come back as
// a result with Success false; the error is reserved for failures of the
// primary write, in which case nothing was committed.
func (t *Tracker) TrackInteraction(ctx context.Context, req models.TrackRequest) (models.TrackResult, error) {
	// Malformed ids never reach the limiter, so they cannot mint counter keys.
	if !utils.ValidSessionID(req.SessionID) {
		return t.reject(req.EventType, models.ErrCodeInvalidData), nil
	}
	allowed, err := t.limiter.Allow(ctx, req.SessionID)
	if err != nil {
		t.logger.Warn("rate limiter unavailable, allowing event", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	if !allowed {
		t.logger.Warn("rate limit exceeded", zap.String("session_id", req.SessionID))
		return t.reject(req.EventType, models.ErrCodeRateLimited), nil
	}

	payload, err := SanitizeEvent(req.EventType, req.EventData)
	if err != nil {
		t.logger.Debug("rejecting event payload", zap.String("session_id", req.SessionID), zap.Error(err))
		return t.reject(req.EventType, models.ErrCodeInvalidData), nil
	}

	at := t.now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		at = req.Timestamp.UTC()
	}

	outcome := OutcomeUnhandled
	visit, err := t.visits.UpdateLocked(ctx, req.SessionID, func(v *models.VisitRecord) (bool, error) {
		if !IsKnownEvent(req.EventType) {
			return false, nil
		}
		touch(v, at)
		outcome = ApplyEvent(v, req.EventType, payload, at)
		rescore(v, at)
		return true, nil
	})
	if errors.Is(err, store.ErrVisitNotFound) {
		return t.reject(req.EventType, models.ErrCodeVisitNotFound), nil
	}
	if err != nil {
		metrics.EventsTracked.WithLabelValues(eventLabel(req.EventType), "error").Inc()
		return models.TrackResult{}, fmt.Errorf("track interaction: %w", err)
	}

	metrics.EventsTracked.WithLabelValues(eventLabel(req.EventType), string(outcome)).Inc()
	if outcome == OutcomeUnhandled {
		t.logger.Info("unhandled event type", zap.String("session_id", req.SessionID), zap.String("event_type", req.EventType))
		return models.TrackResult{
			Success:             true,
			EventTracked:        false,
			Outcome:             string(outcome),
			SessionQualityScore: visit.SessionQualityScore,
		}, nil
	}

	metrics.SessionQuality.Observe(visit.SessionQualityScore)
	t.afterCommit(ctx, visit, req.EventType, payload, at)

	return models.TrackResult{
		Success:             true,
		EventTracked:        true,
		Outcome:             string(outcome),
		SessionQualityScore: visit.SessionQualityScore,
	}, nil
}

// MarkConversion records a funnel milestone for the session. Marking a
// milestone that is already set changes nothing.
func (t *Tracker) MarkConversion(ctx context.Context, sessionID, kind string, userID *int64) (*models.VisitRecord, error) {
	var flag func(*models.VisitRecord) *bool
	switch kind {
	case models.ConversionCreatedDocument:
		flag = func(v *models.VisitRecord) *bool { return &v.CreatedDocument }
	case models.ConversionRegistered:
		flag = func(v *models.VisitRecord) *bool { return &v.Registered }
	case models.ConversionDownloadedDocument:
		flag = func(v *models.VisitRecord) *bool { return &v.DownloadedDocument }
	case models.ConversionPaid:
		flag = func(v *models.VisitRecord) *bool { return &v.ConvertedToPaid }
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversion, kind)
	}

	at := t.now().UTC()
	return t.visits.UpdateLocked(ctx, sessionID, func(v *models.VisitRecord) (bool, error) {
		changed := false
		if userID != nil && (v.UserID == nil || *v.UserID != *userID) {
			v.UserID = userID
			changed = true
		}
		if f := flag(v); !*f {
			*f = true
			if v.ConvertedAt == nil {
				v.ConvertedAt = &at
			}
			changed = true
		}
		if !changed {
			return false, nil
		}
		touch(v, at)
		rescore(v, at)
		return true, nil
	})
}

// Wait blocks until background work started by TrackInteraction has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) reject(eventType, code string) models.TrackResult {
	metrics.EventsTracked.WithLabelValues(eventLabel(eventType), code).Inc()
	return models.TrackResult{Success: false, Error: code}
}

// touch records an interaction at time at. The first one ends the bounce.
func touch(v *models.VisitRecord, at time.Time) {
	if v.FirstInteractionAt == nil {
		first := at
		v.FirstInteractionAt = &first
		v.Bounce = false
	}
	v.ActiveTimeSeconds = AccrueActiveTime(v.ActiveTimeSeconds, v.LastInteractionAt, at)
	if v.LastInteractionAt == nil || at.After(*v.LastInteractionAt) {
		last := at
		v.LastInteractionAt = &last
	}
	v.EngagementDepth++
}

func rescore(v *models.VisitRecord, at time.Time) {
	v.BounceType = ClassifyBounce(v, at)
	v.SessionQualityScore = SessionQuality(v)
	v.ConversionProbability = ConversionProbability(v)
}

// eventLabel keeps metric label cardinality bounded for arbitrary client input.
func eventLabel(eventType string) string {
	if IsKnownEvent(eventType) {
		return eventType
	}
	return "other"
}

func (t *Tracker) afterCommit(ctx context.Context, visit *models.VisitRecord, eventType string, p models.EventPayload, at time.Time) {
	event := interactionEvent(visit, eventType, p, at)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
		defer cancel()

		if t.realtime != nil {
			t.realtime.Bump(bg, eventType, p.TemplateID, at)
		}
		if t.events != nil {
			if err := t.events.InsertInteractionEvents(bg, []models.InteractionEvent{event}); err != nil {
				t.logger.Warn("failed to append interaction to event log", zap.String("session_id", visit.SessionID), zap.Error(err))
			}
		}
	}()
}

func interactionEvent(visit *models.VisitRecord, eventType string, p models.EventPayload, at time.Time) models.InteractionEvent {
	event := models.InteractionEvent{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		SessionID:    visit.SessionID,
		Timestamp:    at,
		PagePath:     p.Page,
		QualityScore: visit.SessionQualityScore,
	}
	if visit.UserID != nil {
		event.UserID = strconv.FormatInt(*visit.UserID, 10)
	}
	if p.TemplateID != nil {
		event.TemplateID = *p.TemplateID
	}
	switch eventType {
	case models.EventPageView:
		event.DurationMs = int64(p.TimeOnPage * 1000)
	case models.EventTemplateInteraction:
		event.DurationMs = int64(p.Duration * 1000)
	}
	if data, err := json.Marshal(p); err == nil {
		event.EventData = data
	}
	return event
}
