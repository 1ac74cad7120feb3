package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
)

var ErrVisitNotFound = errors.New("visit not found")

const visitColumns = `id, session_id, user_id, landing_page, referrer, ip_address, user_agent,
	created_at, updated_at, first_interaction_at, last_interaction_at,
	active_time_seconds, time_on_page_seconds, templates_viewed_count, scroll_depth,
	form_completion, engagement_depth, last_interaction_field,
	pages_viewed, template_interactions, form_interactions,
	bounce, bounce_type, created_document, registered, downloaded_document,
	converted_to_paid, converted_at, session_quality_score, conversion_probability`

// VisitStore persists landing-page session records in Postgres.
type VisitStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewVisitStore(db *sql.DB, logger *zap.Logger) *VisitStore {
	return &VisitStore{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*models.VisitRecord, error) {
	var (
		v                                models.VisitRecord
		userID                           sql.NullInt64
		firstAt, lastAt, convertedAt     sql.NullTime
		pagesRaw, templatesRaw, formsRaw []byte
	)
	err := row.Scan(
		&v.ID, &v.SessionID, &userID, &v.LandingPage, &v.Referrer, &v.IPAddress, &v.UserAgent,
		&v.CreatedAt, &v.UpdatedAt, &firstAt, &lastAt,
		&v.ActiveTimeSeconds, &v.TimeOnPageSeconds, &v.TemplatesViewedCount, &v.ScrollDepth,
		&v.FormCompletion, &v.EngagementDepth, &v.LastInteractionField,
		&pagesRaw, &templatesRaw, &formsRaw,
		&v.Bounce, &v.BounceType, &v.CreatedDocument, &v.Registered, &v.DownloadedDocument,
		&v.ConvertedToPaid, &convertedAt, &v.SessionQualityScore, &v.ConversionProbability,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		v.UserID = &userID.Int64
	}
	v.FirstInteractionAt = nullTimePtr(firstAt)
	v.LastInteractionAt = nullTimePtr(lastAt)
	v.ConvertedAt = nullTimePtr(convertedAt)

	if err := unmarshalList(pagesRaw, &v.PagesViewed); err != nil {
		return nil, fmt.Errorf("decode pages_viewed: %w", err)
	}
	if err := unmarshalList(templatesRaw, &v.TemplateInteractions); err != nil {
		return nil, fmt.Errorf("decode template_interactions: %w", err)
	}
	if err := unmarshalList(formsRaw, &v.FormInteractions); err != nil {
		return nil, fmt.Errorf("decode form_interactions: %w", err)
	}
	return &v, nil
}

// GetOrCreate returns the record for start.SessionID, creating a bounced,
// zeroed record when the session is new. created reports which happened.
func (s *VisitStore) GetOrCreate(ctx context.Context, start models.VisitStart) (*models.VisitRecord, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO landing_page_visits (session_id, user_id, landing_page, referrer, ip_address, user_agent, bounce, bounce_type)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		start.SessionID, nullInt64(start.UserID), start.LandingPage, start.Referrer,
		start.IPAddress, start.UserAgent, models.BounceTypePending,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create visit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read visit insert result: %w", err)
	}

	visit, err := s.GetBySession(ctx, start.SessionID)
	if err != nil {
		return nil, false, err
	}
	if affected == 1 {
		s.logger.Debug("visit created", zap.String("session_id", start.SessionID))
	}
	return visit, affected == 1, nil
}

func (s *VisitStore) GetBySession(ctx context.Context, sessionID string) (*models.VisitRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM landing_page_visits WHERE session_id = $1`, sessionID)
	visit, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return visit, nil
}

// UpdateLocked loads the session's record with SELECT ... FOR UPDATE, hands it
// to fn and writes it back in the same transaction. The row lock is held only
// for this one call. When fn reports no change the transaction is rolled back
// and the record is returned as read.
func (s *VisitStore) UpdateLocked(ctx context.Context, sessionID string, fn func(*models.VisitRecord) (bool, error)) (*models.VisitRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin visit update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM landing_page_visits WHERE session_id = $1 FOR UPDATE`, sessionID)
	visit, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock visit: %w", err)
	}

	changed, err := fn(visit)
	if err != nil {
		return nil, err
	}
	if !changed {
		return visit, nil
	}

	pages, err := marshalList(visit.PagesViewed)
	if err != nil {
		return nil, err
	}
	templates, err := marshalList(visit.TemplateInteractions)
	if err != nil {
		return nil, err
	}
	forms, err := marshalList(visit.FormInteractions)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE landing_page_visits SET
			user_id = $2, first_interaction_at = $3, last_interaction_at = $4,
			active_time_seconds = $5, time_on_page_seconds = $6, templates_viewed_count = $7,
			scroll_depth = $8, form_completion = $9, engagement_depth = $10, last_interaction_field = $11,
			pages_viewed = $12, template_interactions = $13, form_interactions = $14,
			bounce = $15, bounce_type = $16, created_document = $17, registered = $18,
			downloaded_document = $19, converted_to_paid = $20, converted_at = $21,
			session_quality_score = $22, conversion_probability = $23, updated_at = NOW()
		WHERE id = $1`,
		visit.ID, nullInt64(visit.UserID), nullTime(visit.FirstInteractionAt), nullTime(visit.LastInteractionAt),
		visit.ActiveTimeSeconds, visit.TimeOnPageSeconds, visit.TemplatesViewedCount,
		visit.ScrollDepth, visit.FormCompletion, visit.EngagementDepth, visit.LastInteractionField,
		pages, templates, forms,
		visit.Bounce, visit.BounceType, visit.CreatedDocument, visit.Registered,
		visit.DownloadedDocument, visit.ConvertedToPaid, nullTime(visit.ConvertedAt),
		visit.SessionQualityScore, visit.ConversionProbability,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update visit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit visit update: %w", err)
	}
	return visit, nil
}

// CountActiveSessions counts sessions with an interaction at or after since.
func (s *VisitStore) CountActiveSessions(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM landing_page_visits WHERE last_interaction_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

func (s *VisitStore) CountConversions(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM landing_page_visits WHERE converted_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return n, nil
}

// CountPageViews counts page_view entries stamped at or after since.
func (s *VisitStore) CountPageViews(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM landing_page_visits v
		CROSS JOIN LATERAL jsonb_array_elements(v.pages_viewed) AS p
		WHERE v.last_interaction_at >= $1
		  AND (p->>'timestamp')::timestamptz >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count page views: %w", err)
	}
	return n, nil
}

// TopActiveTemplates ranks templates by distinct sessions that interacted with
// them among sessions active since the given time.
func (s *VisitStore) TopActiveTemplates(ctx context.Context, since time.Time, limit int) ([]models.ActiveTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT (t->>'template_id')::bigint AS template_id, COUNT(DISTINCT v.id) AS active_viewers
		FROM landing_page_visits v
		CROSS JOIN LATERAL jsonb_array_elements(v.template_interactions) AS t
		WHERE v.last_interaction_at >= $1
		GROUP BY 1
		ORDER BY active_viewers DESC, template_id ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active templates: %w", err)
	}
	defer rows.Close()

	results := []models.ActiveTemplate{}
	for rows.Next() {
		var t models.ActiveTemplate
		if err := rows.Scan(&t.TemplateID, &t.ActiveViewers); err != nil {
			return nil, fmt.Errorf("failed to scan active template: %w", err)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active templates: %w", err)
	}
	return results, nil
}
