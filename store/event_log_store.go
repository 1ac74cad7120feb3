package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/utils"
)

// EventLogStore appends handled interactions to the ClickHouse
// interaction_events table and serves time-bucketed stats over it.
type EventLogStore struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewEventLogStore(conn driver.Conn, logger *zap.Logger) *EventLogStore {
	return &EventLogStore{conn: conn, logger: logger}
}

func (s *EventLogStore) InsertInteractionEvents(ctx context.Context, events []models.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO interaction_events (
			event_id, event_type, session_id, user_id, timestamp, page_path,
			template_id, duration_ms, quality_score, event_data
		)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	appended := 0
	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.SessionID,
			event.UserID,
			event.Timestamp,
			event.PagePath,
			event.TemplateID,
			event.DurationMs,
			event.QualityScore,
			string(event.EventData),
		)
		if err != nil {
			s.logger.Warn("skipping interaction event", zap.String("event_id", event.EventID), zap.Error(err))
			continue
		}
		appended++
	}
	if appended == 0 {
		if err := batch.Abort(); err != nil {
			s.logger.Warn("failed to abort empty batch", zap.Error(err))
		}
		return errors.New("no interaction events could be appended")
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("interaction events inserted", zap.Int("count", appended))
	return nil
}

// GetEventCountsOverTime buckets interactions by interval (Minute, Hour, Day,
// Week, Month, Quarter or Year). A non-empty eventType restricts and labels the
// buckets with that type.
func (s *EventLogStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventType string) ([]models.EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []any{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	groupBy := "time_bucket"
	if eventType != "" {
		selectCols += ", event_type"
		whereClause += " AND event_type = ?"
		groupBy += ", event_type"
		args = append(args, eventType)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM interaction_events
		%s
		GROUP BY %s
		ORDER BY time_bucket ASC`, selectCols, whereClause, groupBy)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	results := []models.EventTypeCountByTime{}
	for rows.Next() {
		var (
			bucket time.Time
			count  uint64
			typ    string
		)
		dest := []any{&bucket, &count}
		if eventType != "" {
			dest = append(dest, &typ)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}

		result := models.EventTypeCountByTime{Time: bucket, Count: count}
		if eventType != "" {
			result.EventType = &typ
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

func (s *EventLogStore) GetTopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	rows, err := s.conn.Query(ctx, `
		SELECT page_path, count() AS view_count
		FROM interaction_events
		WHERE event_type = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY page_path
		ORDER BY view_count DESC
		LIMIT ?`, models.EventPageView, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	results := []models.TopPathResult{}
	for rows.Next() {
		var r models.TopPathResult
		if err := rows.Scan(&r.PagePath, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top page: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top pages: %w", err)
	}
	return results, nil
}

// GetAverageDuration averages duration_ms over the window. ClickHouse returns
// NaN for an empty set; that is reported as 0.
func (s *EventLogStore) GetAverageDuration(ctx context.Context, eventType string, start, end time.Time) (float64, error) {
	query := `SELECT avg(duration_ms) FROM interaction_events WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{start, end}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}

	var avg float64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to query average duration: %w", err)
	}
	if math.IsNaN(avg) {
		return 0, nil
	}
	return avg, nil
}
