package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/LordMirex/mytypist-backend/cache"
	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/store"
)

// memoryVisits is an in-memory VisitRepository. UpdateLocked holds a mutex
// for the whole read-modify-write, standing in for the row lock.
type memoryVisits struct {
	mu      sync.Mutex
	records map[string]*models.VisitRecord
	writes  int
}

func newMemoryVisits() *memoryVisits {
	return &memoryVisits{records: map[string]*models.VisitRecord{}}
}

func cloneVisit(v *models.VisitRecord) *models.VisitRecord {
	b, _ := json.Marshal(v)
	var out models.VisitRecord
	_ = json.Unmarshal(b, &out)
	out.IPAddress, out.UserAgent = v.IPAddress, v.UserAgent
	return &out
}

func (m *memoryVisits) GetOrCreate(ctx context.Context, start models.VisitStart) (*models.VisitRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.records[start.SessionID]; ok {
		return cloneVisit(v), false, nil
	}
	v := &models.VisitRecord{
		ID:                   int64(len(m.records) + 1),
		SessionID:            start.SessionID,
		UserID:               start.UserID,
		LandingPage:          start.LandingPage,
		Referrer:             start.Referrer,
		CreatedAt:            time.Now().UTC().Add(-time.Minute),
		Bounce:               true,
		BounceType:           models.BounceTypePending,
		PagesViewed:          []models.PageViewEntry{},
		TemplateInteractions: []models.TemplateInteractionEntry{},
		FormInteractions:     []models.FormInteractionEntry{},
	}
	m.records[start.SessionID] = v
	return cloneVisit(v), true, nil
}

func (m *memoryVisits) GetBySession(ctx context.Context, sessionID string) (*models.VisitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[sessionID]
	if !ok {
		return nil, store.ErrVisitNotFound
	}
	return cloneVisit(v), nil
}

func (m *memoryVisits) UpdateLocked(ctx context.Context, sessionID string, fn func(*models.VisitRecord) (bool, error)) (*models.VisitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[sessionID]
	if !ok {
		return nil, store.ErrVisitNotFound
	}
	working := cloneVisit(current)
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if changed {
		m.records[sessionID] = working
		m.writes++
	}
	return cloneVisit(working), nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.InteractionEvent
}

func (s *recordingSink) InsertInteractionEvents(ctx context.Context, events []models.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, cache.NewRedisStore(client)
}
