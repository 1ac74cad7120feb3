package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/metrics"
	"github.com/LordMirex/mytypist-backend/models"
)

// Headers never copied into incident evidence.
var redactedHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-api-key":     {},
}

type IncidentStore interface {
	CreateIncident(ctx context.Context, inc *models.SecurityIncident) error
	UpdateIncidentLocked(ctx context.Context, id int64, fn func(*models.SecurityIncident) error) (*models.SecurityIncident, error)
	ListIncidents(ctx context.Context, status models.IncidentStatus, limit int) ([]models.SecurityIncident, error)
	CleanupResolved(ctx context.Context, cutoff time.Time) (int64, error)
}

// RequestInfo is the part of an inbound request the monitor looks at.
type RequestInfo struct {
	IP        string
	Method    string
	Path      string
	RawQuery  string
	UserAgent string
	Headers   map[string]string
	UserID    *int64
}

// Target is the text scanned for patterns: the path plus the decoded query.
func (r RequestInfo) Target() string {
	if r.RawQuery == "" {
		return r.Path
	}
	q, err := url.QueryUnescape(r.RawQuery)
	if err != nil {
		q = r.RawQuery
	}
	return r.Path + "?" + q
}

// Verdict is the outcome of inspecting one request.
type Verdict struct {
	Blocked bool
	Alert   *models.SecurityAlert
}

type Monitor struct {
	incidents IncidentStore
	blocklist *Blocklist
	logger    *zap.Logger
	now       func() time.Time
}

func NewMonitor(incidents IncidentStore, blocklist *Blocklist, logger *zap.Logger) *Monitor {
	return &Monitor{incidents: incidents, blocklist: blocklist, logger: logger, now: time.Now}
}

func (m *Monitor) Blocklist() *Blocklist {
	return m.blocklist
}

// Inspect checks the source IP against the blocklist and the request against
// the threat patterns. A blocked request is logged and not scanned. Any match
// produces exactly one incident carrying every matched pattern, tagged with
// the most severe one.
func (m *Monitor) Inspect(ctx context.Context, info RequestInfo) (Verdict, error) {
	blocked, err := m.blocklist.IsBlocked(ctx, info.IP)
	if err != nil {
		m.logger.Warn("blocklist lookup failed, allowing request", zap.String("ip", info.IP), zap.Error(err))
	}
	if blocked {
		metrics.BlockedRequests.Inc()
		m.logger.Warn("blocked ip attempt",
			zap.String("ip", info.IP),
			zap.String("method", info.Method),
			zap.String("path", info.Path),
			zap.String("user_agent", info.UserAgent),
		)
		return Verdict{Blocked: true}, nil
	}

	matches := DetectThreats(info.Target())
	if len(matches) == 0 {
		return Verdict{}, nil
	}
	for _, match := range matches {
		metrics.ThreatsDetected.WithLabelValues(string(match.PatternType), string(match.Severity)).Inc()
	}

	now := m.now().UTC()
	top := matches[0]

	descriptions := make([]string, len(matches))
	for i, match := range matches {
		descriptions[i] = match.Description
	}
	pattern, err := json.Marshal(matches)
	if err != nil {
		return Verdict{}, fmt.Errorf("encode attack pattern: %w", err)
	}
	evidence, err := json.Marshal(map[string]any{
		"request_headers": redact(info.Headers),
		"request_path":    info.Path,
		"request_query":   info.RawQuery,
		"request_method":  info.Method,
		"timestamp":       now.Format(time.RFC3339),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("encode evidence: %w", err)
	}

	inc := &models.SecurityIncident{
		AlertID:        uuid.NewString(),
		ThreatLevel:    top.Severity,
		AlertType:      string(top.PatternType),
		Title:          "Security threat detected: " + string(top.PatternType),
		Description:    strings.Join(descriptions, "\n"),
		AffectedUserID: info.UserID,
		SourceIP:       info.IP,
		UserAgent:      info.UserAgent,
		AttackVector:   string(top.PatternType),
		AttackPattern:  pattern,
		Evidence:       evidence,
		Status:         models.IncidentOpen,
	}
	if err := m.incidents.CreateIncident(ctx, inc); err != nil {
		return Verdict{}, fmt.Errorf("record security incident: %w", err)
	}

	m.logger.Warn("security threat detected",
		zap.String("alert_id", inc.AlertID),
		zap.String("threat_level", string(inc.ThreatLevel)),
		zap.String("alert_type", inc.AlertType),
		zap.String("ip", info.IP),
		zap.Int("matches", len(matches)),
	)

	return Verdict{Alert: &models.SecurityAlert{
		AlertID:            inc.AlertID,
		ThreatLevel:        inc.ThreatLevel,
		AlertType:          inc.AlertType,
		Title:              inc.Title,
		Description:        inc.Description,
		AffectedUserID:     info.UserID,
		SourceIP:           info.IP,
		Timestamp:          now,
		AttackVector:       inc.AttackVector,
		Matches:            matches,
		Evidence:           evidence,
		RecommendedActions: RecommendedActions(matches),
	}}, nil
}

// UpdateIncidentStatus moves an incident through its workflow under a row lock.
func (m *Monitor) UpdateIncidentStatus(ctx context.Context, id int64, req models.IncidentStatusRequest) (*models.SecurityIncident, error) {
	return m.incidents.UpdateIncidentLocked(ctx, id, func(inc *models.SecurityIncident) error {
		return ApplyStatus(inc, req, m.now().UTC())
	})
}

func (m *Monitor) ListIncidents(ctx context.Context, status models.IncidentStatus, limit int) ([]models.SecurityIncident, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return m.incidents.ListIncidents(ctx, status, limit)
}

// CleanupOld deletes resolved incidents older than retentionDays.
func (m *Monitor) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := m.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := m.incidents.CleanupResolved(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RecordsCleaned.WithLabelValues("security_incidents").Add(float64(n))
	m.logger.Info("old security incidents removed", zap.Int64("count", n), zap.Int("retention_days", retentionDays))
	return n, nil
}

func redact(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if _, ok := redactedHeaders[strings.ToLower(k)]; ok {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}
