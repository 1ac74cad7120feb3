package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
)

// fakeConn implements the parts of driver.Conn the event log uses.
type fakeConn struct {
	driver.Conn
	batch     *fakeBatch
	rows      *fakeRows
	row       *fakeRow
	lastQuery string
	lastArgs  []any
}

func (c *fakeConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.lastQuery = query
	return c.batch, nil
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	c.lastQuery, c.lastArgs = query, args
	return c.rows, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	c.lastQuery, c.lastArgs = query, args
	return c.row
}

type fakeBatch struct {
	driver.Batch
	appended  [][]any
	appendErr error
	sent      bool
	aborted   bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.appended = append(b.appended, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeRows struct {
	driver.Rows
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(r.data[r.pos-1], dest)
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

type fakeRow struct {
	driver.Row
	values []any
}

func (r *fakeRow) Scan(dest ...any) error { return assign(r.values, dest) }

func assign(src []any, dest []any) error {
	if len(src) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *time.Time:
			*p = src[i].(time.Time)
		case *uint64:
			*p = src[i].(uint64)
		case *string:
			*p = src[i].(string)
		case *float64:
			*p = src[i].(float64)
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

func TestInsertInteractionEvents(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{}}
	s := NewEventLogStore(conn, zap.NewNop())

	err := s.InsertInteractionEvents(context.Background(), []models.InteractionEvent{
		{EventID: "e1", EventType: models.EventPageView, SessionID: "s1", PagePath: "/"},
		{EventID: "e2", EventType: models.EventScroll, SessionID: "s1"},
	})
	require.NoError(t, err)
	assert.True(t, conn.batch.sent)
	assert.Len(t, conn.batch.appended, 2)
	assert.Contains(t, conn.lastQuery, "INSERT INTO interaction_events")
}

func TestInsertInteractionEvents_EmptyIsNoop(t *testing.T) {
	conn := &fakeConn{}
	s := NewEventLogStore(conn, zap.NewNop())
	require.NoError(t, s.InsertInteractionEvents(context.Background(), nil))
	assert.Empty(t, conn.lastQuery)
}

func TestInsertInteractionEvents_AllAppendsFail(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{appendErr: errors.New("bad column")}}
	s := NewEventLogStore(conn, zap.NewNop())

	err := s.InsertInteractionEvents(context.Background(), []models.InteractionEvent{{EventID: "e1"}})
	require.Error(t, err)
	assert.True(t, conn.batch.aborted)
	assert.False(t, conn.batch.sent)
}

func TestGetEventCountsOverTime(t *testing.T) {
	bucket := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start, end := bucket.Add(-time.Hour), bucket.Add(time.Hour)

	t.Run("rejects unknown interval", func(t *testing.T) {
		s := NewEventLogStore(&fakeConn{}, zap.NewNop())
		_, err := s.GetEventCountsOverTime(context.Background(), "Fortnight", start, end, "")
		assert.Error(t, err)
	})

	t.Run("totals", func(t *testing.T) {
		conn := &fakeConn{rows: &fakeRows{data: [][]any{{bucket, uint64(7)}}}}
		s := NewEventLogStore(conn, zap.NewNop())

		got, err := s.GetEventCountsOverTime(context.Background(), "Hour", start, end, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].EventType)
		assert.Equal(t, uint64(7), got[0].Count)
		assert.Contains(t, conn.lastQuery, "toStartOfHour(timestamp)")
		assert.Len(t, conn.lastArgs, 2)
	})

	t.Run("filtered by type", func(t *testing.T) {
		conn := &fakeConn{rows: &fakeRows{data: [][]any{{bucket, uint64(3), "scroll"}}}}
		s := NewEventLogStore(conn, zap.NewNop())

		got, err := s.GetEventCountsOverTime(context.Background(), "Day", start, end, "scroll")
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].EventType)
		assert.Equal(t, "scroll", *got[0].EventType)
		assert.Equal(t, []any{start, end, "scroll"}, conn.lastArgs)
	})
}

func TestGetTopPages_DefaultLimit(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{data: [][]any{{"/", uint64(9)}, {"/pricing", uint64(2)}}}}
	s := NewEventLogStore(conn, zap.NewNop())

	got, err := s.GetTopPages(context.Background(), time.Now().Add(-time.Hour), time.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, []models.TopPathResult{{PagePath: "/", Count: 9}, {PagePath: "/pricing", Count: 2}}, got)
	assert.Equal(t, uint64(10), conn.lastArgs[3])
}

func TestGetAverageDuration_NaNIsZero(t *testing.T) {
	conn := &fakeConn{row: &fakeRow{values: []any{math.NaN()}}}
	s := NewEventLogStore(conn, zap.NewNop())

	avg, err := s.GetAverageDuration(context.Background(), "", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)
}
