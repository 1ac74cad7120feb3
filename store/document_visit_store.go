package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/models"
)

const documentVisitColumns = `dv.id, dv.document_id, dv.visit_type, dv.ip_address, dv.user_agent, dv.referrer,
	dv.browser_name, dv.os_name, dv.device_type, dv.country, dv.city, dv.latitude, dv.longitude,
	dv.reading_time_seconds, dv.bounce, dv.device_fingerprint, dv.metadata, dv.created_at`

// DocumentVisitStore reads and writes document_visits and the document/template
// tables the dashboard joins against.
type DocumentVisitStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDocumentVisitStore(db *sql.DB, logger *zap.Logger) *DocumentVisitStore {
	return &DocumentVisitStore{db: db, logger: logger}
}

// Period is a half-open [From, To) time range. A zero bound is unbounded.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) clause(column string, args []any) (string, []any) {
	var sb strings.Builder
	if !p.From.IsZero() {
		args = append(args, p.From)
		fmt.Fprintf(&sb, " AND %s >= $%d", column, len(args))
	}
	if !p.To.IsZero() {
		args = append(args, p.To)
		fmt.Fprintf(&sb, " AND %s < $%d", column, len(args))
	}
	return sb.String(), args
}

func (s *DocumentVisitStore) DocumentExists(ctx context.Context, documentID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return exists, nil
}

func (s *DocumentVisitStore) Create(ctx context.Context, v *models.DocumentVisit) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_visits (
			document_id, visit_type, ip_address, user_agent, referrer, browser_name, os_name,
			device_type, country, city, latitude, longitude, reading_time_seconds, bounce,
			device_fingerprint, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`,
		v.DocumentID, v.VisitType, v.IPAddress, v.UserAgent, v.Referrer, v.BrowserName, v.OSName,
		v.DeviceType, v.Country, v.City, v.Latitude, v.Longitude, v.ReadingTimeSeconds, v.Bounce,
		v.DeviceFingerprint, jsonOrNull(v.Metadata),
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document visit: %w", err)
	}
	return nil
}

// ListForUser returns visits to the user's documents created at or after
// since, oldest first.
func (s *DocumentVisitStore) ListForUser(ctx context.Context, userID int64, documentID *int64, since time.Time) ([]models.DocumentVisit, error) {
	query := `SELECT ` + documentVisitColumns + `
		FROM document_visits dv
		JOIN documents d ON d.id = dv.document_id
		WHERE d.user_id = $1 AND dv.created_at >= $2`
	args := []any{userID, since}
	if documentID != nil {
		args = append(args, *documentID)
		query += fmt.Sprintf(" AND dv.document_id = $%d", len(args))
	}
	query += " ORDER BY dv.created_at ASC, dv.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query document visits: %w", err)
	}
	defer rows.Close()

	visits := []models.DocumentVisit{}
	for rows.Next() {
		v, err := scanDocumentVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document visit: %w", err)
		}
		visits = append(visits, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document visits: %w", err)
	}
	return visits, nil
}

func scanDocumentVisit(row rowScanner) (*models.DocumentVisit, error) {
	var (
		v                               models.DocumentVisit
		ip, ua, referrer, country, city sql.NullString
		fingerprint                     sql.NullString
		lat, lon                        sql.NullFloat64
		metadata                        []byte
	)
	err := row.Scan(
		&v.ID, &v.DocumentID, &v.VisitType, &ip, &ua, &referrer,
		&v.BrowserName, &v.OSName, &v.DeviceType, &country, &city, &lat, &lon,
		&v.ReadingTimeSeconds, &v.Bounce, &fingerprint, &metadata, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.IPAddress = nullStringPtr(ip)
	v.UserAgent = nullStringPtr(ua)
	v.Referrer = nullStringPtr(referrer)
	v.Country = nullStringPtr(country)
	v.City = nullStringPtr(city)
	v.Latitude = nullFloatPtr(lat)
	v.Longitude = nullFloatPtr(lon)
	v.DeviceFingerprint = nullStringPtr(fingerprint)
	if len(metadata) > 0 {
		v.Metadata = metadata
	}
	return &v, nil
}

// Anonymize overwrites the PII columns of every visit to the user's documents
// (optionally one document) in a single statement and returns the number of
// rows it touched. Running it again writes the same sentinels.
func (s *DocumentVisitStore) Anonymize(ctx context.Context, userID int64, documentID *int64) (int64, error) {
	query := `
		UPDATE document_visits dv SET
			ip_address = CASE WHEN dv.ip_address IS NULL THEN NULL ELSE $2 END,
			city = NULL,
			latitude = NULL,
			longitude = NULL,
			user_agent = $3,
			device_fingerprint = $3,
			metadata = '{"anonymized": true}'::jsonb
		FROM documents d
		WHERE d.id = dv.document_id AND d.user_id = $1`
	args := []any{userID, models.AnonymizedIP, models.AnonymizedValue}
	if documentID != nil {
		args = append(args, *documentID)
		query += " AND dv.document_id = $4"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize document visits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read anonymize result: %w", err)
	}
	s.logger.Info("document visits anonymized", zap.Int64("user_id", userID), zap.Int64("count", n))
	return n, nil
}

func (s *DocumentVisitStore) CountDocuments(ctx context.Context, userID int64, p Period) (int64, error) {
	where, args := p.clause("created_at", []any{userID})
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE user_id = $1`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *DocumentVisitStore) CountVisits(ctx context.Context, userID int64, p Period) (int64, error) {
	where, args := p.clause("dv.created_at", []any{userID})
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM document_visits dv
		JOIN documents d ON d.id = dv.document_id
		WHERE d.user_id = $1`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count document visits: %w", err)
	}
	return n, nil
}

// TopDocuments ranks the user's documents by visits since the given time.
func (s *DocumentVisitStore) TopDocuments(ctx context.Context, userID int64, since time.Time, limit int) ([]models.TopDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, COUNT(dv.id) AS visit_count
		FROM documents d
		JOIN document_visits dv ON dv.document_id = d.id
		WHERE d.user_id = $1 AND dv.created_at >= $2
		GROUP BY d.id, d.title
		ORDER BY visit_count DESC, d.id ASC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top documents: %w", err)
	}
	defer rows.Close()

	results := []models.TopDocument{}
	for rows.Next() {
		var d models.TopDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Visits); err != nil {
			return nil, fmt.Errorf("failed to scan top document: %w", err)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top documents: %w", err)
	}
	return results, nil
}

// TemplateUsage ranks templates by documents the user created from them since the given time.
func (s *DocumentVisitStore) TemplateUsage(ctx context.Context, userID int64, since time.Time, limit int) ([]models.TemplateUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, COUNT(d.id) AS usage_count
		FROM templates t
		JOIN documents d ON d.template_id = t.id
		WHERE d.user_id = $1 AND d.created_at >= $2
		GROUP BY t.id, t.name
		ORDER BY usage_count DESC, t.id ASC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query template usage: %w", err)
	}
	defer rows.Close()

	results := []models.TemplateUsage{}
	for rows.Next() {
		var t models.TemplateUsage
		if err := rows.Scan(&t.ID, &t.Name, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan template usage: %w", err)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template usage: %w", err)
	}
	return results, nil
}
