package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/LordMirex/mytypist-backend/middleware"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser stands in for the auth middleware.
func asUser(id int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id > 0 {
			c.Set(middleware.ContextUserID, id)
		}
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type memoryVisits struct {
	mu      sync.Mutex
	records map[string]models.VisitRecord
}

func newMemoryVisits() *memoryVisits {
	return &memoryVisits{records: map[string]models.VisitRecord{}}
}

func (m *memoryVisits) GetOrCreate(ctx context.Context, start models.VisitStart) (*models.VisitRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.records[start.SessionID]; ok {
		return &v, false, nil
	}
	v := models.VisitRecord{
		ID:          int64(len(m.records) + 1),
		SessionID:   start.SessionID,
		UserID:      start.UserID,
		LandingPage: start.LandingPage,
		Referrer:    start.Referrer,
		IPAddress:   start.IPAddress,
		UserAgent:   start.UserAgent,
		CreatedAt:   time.Now().UTC(),
		Bounce:      true,
		BounceType:  models.BounceTypePending,
	}
	m.records[start.SessionID] = v
	return &v, true, nil
}

func (m *memoryVisits) GetBySession(ctx context.Context, sessionID string) (*models.VisitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[sessionID]
	if !ok {
		return nil, store.ErrVisitNotFound
	}
	return &v, nil
}

func (m *memoryVisits) UpdateLocked(ctx context.Context, sessionID string, fn func(*models.VisitRecord) (bool, error)) (*models.VisitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[sessionID]
	if !ok {
		return nil, store.ErrVisitNotFound
	}
	changed, err := fn(&v)
	if err != nil {
		return nil, err
	}
	if changed {
		m.records[sessionID] = v
	}
	return &v, nil
}

type memoryDocumentVisits struct {
	visits     []models.DocumentVisit
	anonymized int64
	lastDocID  *int64
}

func (m *memoryDocumentVisits) DocumentExists(ctx context.Context, documentID int64) (bool, error) {
	return documentID == 7, nil
}

func (m *memoryDocumentVisits) Create(ctx context.Context, v *models.DocumentVisit) error {
	v.ID = int64(len(m.visits) + 1)
	v.CreatedAt = time.Now().UTC()
	m.visits = append(m.visits, *v)
	return nil
}

func (m *memoryDocumentVisits) ListForUser(ctx context.Context, userID int64, documentID *int64, since time.Time) ([]models.DocumentVisit, error) {
	return m.visits, nil
}

func (m *memoryDocumentVisits) Anonymize(ctx context.Context, userID int64, documentID *int64) (int64, error) {
	m.lastDocID = documentID
	return m.anonymized, nil
}

func (m *memoryDocumentVisits) CountDocuments(ctx context.Context, userID int64, p store.Period) (int64, error) {
	return 0, nil
}

func (m *memoryDocumentVisits) CountVisits(ctx context.Context, userID int64, p store.Period) (int64, error) {
	return 0, nil
}

func (m *memoryDocumentVisits) TopDocuments(ctx context.Context, userID int64, since time.Time, limit int) ([]models.TopDocument, error) {
	return nil, nil
}

func (m *memoryDocumentVisits) TemplateUsage(ctx context.Context, userID int64, since time.Time, limit int) ([]models.TemplateUsage, error) {
	return nil, nil
}

type memoryIncidents struct {
	mu        sync.Mutex
	incidents map[int64]models.SecurityIncident
}

func (m *memoryIncidents) CreateIncident(ctx context.Context, inc *models.SecurityIncident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc.ID = int64(len(m.incidents) + 1)
	m.incidents[inc.ID] = *inc
	return nil
}

func (m *memoryIncidents) UpdateIncidentLocked(ctx context.Context, id int64, fn func(*models.SecurityIncident) error) (*models.SecurityIncident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, store.ErrIncidentNotFound
	}
	if err := fn(&inc); err != nil {
		return nil, err
	}
	m.incidents[id] = inc
	return &inc, nil
}

func (m *memoryIncidents) ListIncidents(ctx context.Context, status models.IncidentStatus, limit int) ([]models.SecurityIncident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SecurityIncident
	for _, inc := range m.incidents {
		if status == "" || inc.Status == status {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (m *memoryIncidents) CleanupResolved(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memoryBlocks struct {
	mu      sync.Mutex
	entries map[string]models.BlockedIP
}

func (m *memoryBlocks) BlockIP(ctx context.Context, b *models.BlockedIP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[b.IP] = *b
	return nil
}

func (m *memoryBlocks) UnblockIP(ctx context.Context, ip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[ip]
	delete(m.entries, ip)
	return ok, nil
}

func (m *memoryBlocks) GetBlockedIP(ctx context.Context, ip string) (*models.BlockedIP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[ip]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memoryBlocks) ActiveBlockedIPs(ctx context.Context) ([]models.BlockedIP, error) {
	return nil, nil
}
