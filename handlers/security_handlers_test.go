package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/cache"
	"github.com/LordMirex/mytypist-backend/middleware"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/security"
)

func newSecurityRouter() (*gin.Engine, *memoryIncidents, *memoryBlocks) {
	incidents := &memoryIncidents{incidents: map[int64]models.SecurityIncident{
		1: {ID: 1, AlertID: "a-1", Status: models.IncidentOpen, ThreatLevel: models.ThreatHigh, CreatedAt: time.Now().UTC().Add(-time.Hour)},
	}}
	blocks := &memoryBlocks{entries: map[string]models.BlockedIP{}}
	blocklist := security.NewBlocklist(blocks, cache.NewRedisStore(nil), time.Minute, zap.NewNop())
	h := NewSecurityHandlers(security.NewMonitor(incidents, blocklist, zap.NewNop()), zap.NewNop())

	r := gin.New()
	r.GET("/api/security/incidents", h.ListIncidents)
	r.PATCH("/api/security/incidents/:id/status", h.UpdateIncidentStatus)
	r.POST("/api/security/blocked-ips", h.BlockIP)
	r.DELETE("/api/security/blocked-ips/:ip", h.UnblockIP)
	return r, incidents, blocks
}

func TestUpdateIncidentStatusHandler(t *testing.T) {
	r, incidents, _ := newSecurityRouter()

	w := doJSON(t, r, http.MethodPatch, "/api/security/incidents/1/status", map[string]any{
		"status": "investigating",
		"notes":  "looking into it",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "investigating", decode(t, w)["status"])
	assert.Contains(t, incidents.incidents[1].InvestigationNotes, "looking into it")
	assert.NotNil(t, incidents.incidents[1].ResponseTimeSeconds)

	tests := []struct {
		name   string
		target string
		body   any
		status int
	}{
		{"back to open", "/api/security/incidents/1/status", map[string]any{"status": "open"}, http.StatusConflict},
		{"unknown status", "/api/security/incidents/1/status", map[string]any{"status": "closed"}, http.StatusBadRequest},
		{"missing status", "/api/security/incidents/1/status", map[string]any{"notes": "x"}, http.StatusBadRequest},
		{"unknown incident", "/api/security/incidents/99/status", map[string]any{"status": "resolved"}, http.StatusNotFound},
		{"bad id", "/api/security/incidents/one/status", map[string]any{"status": "resolved"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPatch, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w = doJSON(t, r, http.MethodPatch, "/api/security/incidents/1/status", map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, incidents.incidents[1].ResolvedAt)

	w = doJSON(t, r, http.MethodPatch, "/api/security/incidents/1/status", map[string]any{"status": "false_positive"})
	assert.Equal(t, http.StatusConflict, w.Code, "resolved incidents are final")
}

func TestListIncidentsHandler(t *testing.T) {
	r, _, _ := newSecurityRouter()

	w := doJSON(t, r, http.MethodGet, "/api/security/incidents?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = doJSON(t, r, http.MethodGet, "/api/security/incidents?status=investigating", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["count"])

	w = doJSON(t, r, http.MethodGet, "/api/security/incidents?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBlockAndUnblockIP(t *testing.T) {
	r, _, blocks := newSecurityRouter()

	w := doJSON(t, r, http.MethodPost, "/api/security/blocked-ips", map[string]any{
		"ip":               "203.0.113.9",
		"reason":           "credential stuffing",
		"duration_minutes": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "203.0.113.9", body["ip"])
	assert.NotNil(t, body["expires_at"])
	assert.Contains(t, blocks.entries, "203.0.113.9")

	w = doJSON(t, r, http.MethodPost, "/api/security/blocked-ips", map[string]any{"ip": "not-an-ip", "reason": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/security/blocked-ips", `{"ip":"198.51.100.1","reason":"x","duration_minutes":9223372036854775807}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/security/blocked-ips/203.0.113.9", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, blocks.entries, "203.0.113.9")

	w = doJSON(t, r, http.MethodDelete, "/api/security/blocked-ips/203.0.113.9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newGuardedRouter(t *testing.T, trusted []string) *gin.Engine {
	t.Helper()
	blocks := &memoryBlocks{entries: map[string]models.BlockedIP{}}
	blocklist := security.NewBlocklist(blocks, cache.NewRedisStore(nil), time.Minute, zap.NewNop())
	_, err := blocklist.Block(context.Background(), "203.0.113.9", "scraping", 0)
	require.NoError(t, err)
	monitor := security.NewMonitor(&memoryIncidents{incidents: map[int64]models.SecurityIncident{}}, blocklist, zap.NewNop())

	r := gin.New()
	require.NoError(t, r.SetTrustedProxies(trusted))
	r.Use(middleware.SecurityMonitor(monitor, zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ip": c.ClientIP()}) })
	return r
}

func guardedGet(r *gin.Engine, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.Header.Set("X-Real-IP", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBlockedIPCannotSpoofForwardedFor(t *testing.T) {
	r := newGuardedRouter(t, nil)

	assert.Equal(t, http.StatusForbidden, guardedGet(r, "203.0.113.9:5555", "").Code)
	assert.Equal(t, http.StatusForbidden, guardedGet(r, "203.0.113.9:5555", "1.2.3.4").Code)
	assert.Equal(t, http.StatusForbidden, guardedGet(r, "203.0.113.9:5555", strings.Repeat("9", 200)).Code)

	w := guardedGet(r, "198.51.100.7:5555", "203.0.113.9")
	require.Equal(t, http.StatusOK, w.Code, "untrusted peers cannot frame others either")
	assert.Equal(t, "198.51.100.7", decode(t, w)["ip"])
}

func TestForwardedForFromTrustedProxy(t *testing.T) {
	r := newGuardedRouter(t, []string{"10.0.0.1"})

	assert.Equal(t, http.StatusForbidden, guardedGet(r, "10.0.0.1:443", "203.0.113.9").Code)

	w := guardedGet(r, "10.0.0.1:443", "198.51.100.7")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "198.51.100.7", decode(t, w)["ip"])

	w = guardedGet(r, "10.0.0.1:443", "not-an-ip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10.0.0.1", decode(t, w)["ip"], "invalid forwarded values fall back to the peer")
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/ok", Health(stubPinger{}))
	r.GET("/down", Health(stubPinger{err: errors.New("connection refused")}))

	w := doJSON(t, r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = doJSON(t, r, http.MethodGet, "/down", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
