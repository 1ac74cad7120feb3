package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
)

const pageVisitColumns = `id, session_id, user_id, page_url, page_title, referrer, ip_address,
	user_agent, visit_duration, metadata, created_at`

type PageVisitStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPageVisitStore(db *sql.DB, logger *zap.Logger) *PageVisitStore {
	return &PageVisitStore{db: db, logger: logger}
}

func (s *PageVisitStore) Track(ctx context.Context, v *models.SimplePageVisit) error {
	var duration sql.NullInt64
	if v.VisitDuration != nil {
		duration = sql.NullInt64{Int64: int64(*v.VisitDuration), Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO page_visits (session_id, user_id, page_url, page_title, referrer, ip_address, user_agent, visit_duration, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		v.SessionID, nullInt64(v.UserID), v.PageURL, v.PageTitle, v.Referrer, v.IPAddress,
		v.UserAgent, duration, jsonOrNull(v.Metadata),
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to track page visit: %w", err)
	}
	return nil
}

// UserVisits returns the user's most recent visits, newest first.
func (s *PageVisitStore) UserVisits(ctx context.Context, userID int64, limit int) ([]models.SimplePageVisit, error) {
	return s.list(ctx, `SELECT `+pageVisitColumns+` FROM page_visits
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
}

func (s *PageVisitStore) SessionVisits(ctx context.Context, sessionID string) ([]models.SimplePageVisit, error) {
	return s.list(ctx, `SELECT `+pageVisitColumns+` FROM page_visits
		WHERE session_id = $1 ORDER BY created_at DESC, id DESC`, sessionID)
}

func (s *PageVisitStore) list(ctx context.Context, query string, args ...any) ([]models.SimplePageVisit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query page visits: %w", err)
	}
	defer rows.Close()

	visits := []models.SimplePageVisit{}
	for rows.Next() {
		var (
			v        models.SimplePageVisit
			userID   sql.NullInt64
			duration sql.NullInt64
			metadata []byte
		)
		err := rows.Scan(&v.ID, &v.SessionID, &userID, &v.PageURL, &v.PageTitle, &v.Referrer,
			&v.IPAddress, &v.UserAgent, &duration, &metadata, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page visit: %w", err)
		}
		if userID.Valid {
			v.UserID = &userID.Int64
		}
		if duration.Valid {
			d := int(duration.Int64)
			v.VisitDuration = &d
		}
		if len(metadata) > 0 {
			v.Metadata = metadata
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating page visits: %w", err)
	}
	return visits, nil
}

// Analytics summarizes page visits created at or after since.
func (s *PageVisitStore) Analytics(ctx context.Context, since time.Time, topN int) (*models.PageVisitAnalytics, error) {
	out := &models.PageVisitAnalytics{
		PopularPages: []models.PageCount{},
		DailyVisits:  []models.DailyCount{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT session_id)
		FROM page_visits WHERE created_at >= $1`, since).Scan(&out.TotalVisits, &out.UniqueVisitors)
	if err != nil {
		return nil, fmt.Errorf("failed to count page visits: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT page_url, COUNT(*) AS visit_count
		FROM page_visits WHERE created_at >= $1
		GROUP BY page_url
		ORDER BY visit_count DESC, page_url ASC
		LIMIT $2`, since, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular pages: %w", err)
	}
	for rows.Next() {
		var p models.PageCount
		if err := rows.Scan(&p.URL, &p.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan popular page: %w", err)
		}
		out.PopularPages = append(out.PopularPages, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating popular pages: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM page_visits WHERE created_at >= $1
		GROUP BY day
		ORDER BY day ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily page visits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d models.DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily page visits: %w", err)
		}
		out.DailyVisits = append(out.DailyVisits, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily page visits: %w", err)
	}
	return out, nil
}

// CleanupOld deletes visits created before cutoff and returns how many were removed.
func (s *PageVisitStore) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_visits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old page visits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read page visit cleanup result: %w", err)
	}
	return n, nil
}
