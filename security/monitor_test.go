package security

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/cache"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/store"
)

type memoryIncidents struct {
	incidents  map[int64]*models.SecurityIncident
	createErr  error
	lastCutoff time.Time
}

func newMemoryIncidents() *memoryIncidents {
	return &memoryIncidents{incidents: map[int64]*models.SecurityIncident{}}
}

func (m *memoryIncidents) CreateIncident(ctx context.Context, inc *models.SecurityIncident) error {
	if m.createErr != nil {
		return m.createErr
	}
	inc.ID = int64(len(m.incidents) + 1)
	inc.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cp := *inc
	m.incidents[inc.ID] = &cp
	return nil
}

func (m *memoryIncidents) UpdateIncidentLocked(ctx context.Context, id int64, fn func(*models.SecurityIncident) error) (*models.SecurityIncident, error) {
	current, ok := m.incidents[id]
	if !ok {
		return nil, store.ErrIncidentNotFound
	}
	working := *current
	if err := fn(&working); err != nil {
		return nil, err
	}
	m.incidents[id] = &working
	return &working, nil
}

func (m *memoryIncidents) ListIncidents(ctx context.Context, status models.IncidentStatus, limit int) ([]models.SecurityIncident, error) {
	out := []models.SecurityIncident{}
	for _, inc := range m.incidents {
		if status == "" || inc.Status == status {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (m *memoryIncidents) CleanupResolved(ctx context.Context, cutoff time.Time) (int64, error) {
	m.lastCutoff = cutoff
	return 2, nil
}

func newTestMonitor(t *testing.T) (*Monitor, *memoryIncidents, *memoryBlocks) {
	t.Helper()
	incidents := newMemoryIncidents()
	blocks := newMemoryBlocks()
	m := NewMonitor(incidents, NewBlocklist(blocks, cache.NewRedisStore(nil), time.Minute, zap.NewNop()), zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return m, incidents, blocks
}

func TestMonitor_CleanRequest(t *testing.T) {
	m, incidents, _ := newTestMonitor(t)

	v, err := m.Inspect(context.Background(), RequestInfo{IP: "102.89.3.4", Method: "GET", Path: "/api/templates"})
	require.NoError(t, err)
	assert.False(t, v.Blocked)
	assert.Nil(t, v.Alert)
	assert.Empty(t, incidents.incidents)
}

func TestMonitor_ThreatCreatesOneIncident(t *testing.T) {
	m, incidents, _ := newTestMonitor(t)
	user := int64(5)

	v, err := m.Inspect(context.Background(), RequestInfo{
		IP:        "102.89.3.4",
		Method:    "GET",
		Path:      "/api/search",
		RawQuery:  "q=%3Cscript%3E&id=1%20union%20select%20*",
		UserAgent: "sqlmap/1.7",
		Headers:   map[string]string{"Authorization": "Bearer secret", "Accept": "*/*"},
		UserID:    &user,
	})
	require.NoError(t, err)
	require.NotNil(t, v.Alert)
	assert.Equal(t, models.ThreatHigh, v.Alert.ThreatLevel)
	assert.Equal(t, string(models.PatternSQLInjection), v.Alert.AlertType)
	assert.Len(t, v.Alert.Matches, 2)
	assert.Contains(t, v.Alert.RecommendedActions, "Block IP address")
	assert.Contains(t, v.Alert.RecommendedActions, "Sanitize user input")

	require.Len(t, incidents.incidents, 1)
	inc := incidents.incidents[1]
	assert.Equal(t, v.Alert.AlertID, inc.AlertID)
	assert.Equal(t, models.IncidentOpen, inc.Status)
	assert.Equal(t, &user, inc.AffectedUserID)

	var evidence map[string]any
	require.NoError(t, json.Unmarshal(inc.Evidence, &evidence))
	headers := evidence["request_headers"].(map[string]any)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "*/*", headers["Accept"])

	var pattern []models.ThreatMatch
	require.NoError(t, json.Unmarshal(inc.AttackPattern, &pattern))
	assert.Len(t, pattern, 2)
}

func TestMonitor_BlockedIPSkipsDetection(t *testing.T) {
	m, incidents, blocks := newTestMonitor(t)
	blocks.entries["6.6.6.6"] = models.BlockedIP{IP: "6.6.6.6", Reason: "abuse"}

	v, err := m.Inspect(context.Background(), RequestInfo{IP: "6.6.6.6", Path: "/drop table users"})
	require.NoError(t, err)
	assert.True(t, v.Blocked)
	assert.Nil(t, v.Alert)
	assert.Empty(t, incidents.incidents)
}

func TestMonitor_IncidentStoreFailure(t *testing.T) {
	m, incidents, _ := newTestMonitor(t)
	incidents.createErr = errors.New("db down")

	_, err := m.Inspect(context.Background(), RequestInfo{IP: "1.2.3.4", Path: "/x", RawQuery: "a=javascript:alert(1)"})
	assert.Error(t, err)
}

func TestMonitor_UpdateIncidentStatus(t *testing.T) {
	m, incidents, _ := newTestMonitor(t)
	_, err := m.Inspect(context.Background(), RequestInfo{IP: "1.2.3.4", Path: "/x", RawQuery: "a=javascript:alert(1)"})
	require.NoError(t, err)

	inc, err := m.UpdateIncidentStatus(context.Background(), 1, models.IncidentStatusRequest{Status: models.IncidentInvestigating})
	require.NoError(t, err)
	assert.Equal(t, models.IncidentInvestigating, inc.Status)
	assert.Equal(t, 1800.0, *inc.ResponseTimeSeconds)

	_, err = m.UpdateIncidentStatus(context.Background(), 1, models.IncidentStatusRequest{Status: models.IncidentOpen})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.IncidentInvestigating, incidents.incidents[1].Status)

	_, err = m.UpdateIncidentStatus(context.Background(), 99, models.IncidentStatusRequest{Status: models.IncidentResolved})
	assert.ErrorIs(t, err, store.ErrIncidentNotFound)
}

func TestMonitor_ListAndCleanup(t *testing.T) {
	m, incidents, _ := newTestMonitor(t)

	_, err := m.ListIncidents(context.Background(), "bogus", 10)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	n, err := m.CleanupOld(context.Background(), 365)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC), incidents.lastCutoff)
}
