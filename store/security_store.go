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

var ErrIncidentNotFound = errors.New("security incident not found")

const incidentColumns = `id, alert_id, threat_level, alert_type, title, description, affected_user_id,
	source_ip, user_agent, attack_vector, attack_pattern, evidence, status, assigned_to,
	investigation_notes, created_at, updated_at, resolved_at, response_time_seconds, resolution_time_seconds`

// SecurityStore persists security incidents and the authoritative blocked-IP list.
type SecurityStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSecurityStore(db *sql.DB, logger *zap.Logger) *SecurityStore {
	return &SecurityStore{db: db, logger: logger}
}

func scanIncident(row rowScanner) (*models.SecurityIncident, error) {
	var (
		inc                          models.SecurityIncident
		affected, assigned           sql.NullInt64
		pattern, evidence            []byte
		resolvedAt                   sql.NullTime
		responseTime, resolutionTime sql.NullFloat64
	)
	err := row.Scan(
		&inc.ID, &inc.AlertID, &inc.ThreatLevel, &inc.AlertType, &inc.Title, &inc.Description, &affected,
		&inc.SourceIP, &inc.UserAgent, &inc.AttackVector, &pattern, &evidence, &inc.Status, &assigned,
		&inc.InvestigationNotes, &inc.CreatedAt, &inc.UpdatedAt, &resolvedAt, &responseTime, &resolutionTime,
	)
	if err != nil {
		return nil, err
	}
	if affected.Valid {
		inc.AffectedUserID = &affected.Int64
	}
	if assigned.Valid {
		inc.AssignedTo = &assigned.Int64
	}
	if len(pattern) > 0 {
		inc.AttackPattern = pattern
	}
	if len(evidence) > 0 {
		inc.Evidence = evidence
	}
	inc.ResolvedAt = nullTimePtr(resolvedAt)
	inc.ResponseTimeSeconds = nullFloatPtr(responseTime)
	inc.ResolutionTimeSeconds = nullFloatPtr(resolutionTime)
	return &inc, nil
}

func (s *SecurityStore) CreateIncident(ctx context.Context, inc *models.SecurityIncident) error {
	if inc.Status == "" {
		inc.Status = models.IncidentOpen
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO security_incidents (
			alert_id, threat_level, alert_type, title, description, affected_user_id, source_ip,
			user_agent, attack_vector, attack_pattern, evidence, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		inc.AlertID, inc.ThreatLevel, inc.AlertType, inc.Title, inc.Description, nullInt64(inc.AffectedUserID),
		inc.SourceIP, inc.UserAgent, inc.AttackVector, jsonOrNull(inc.AttackPattern), jsonOrNull(inc.Evidence),
		inc.Status,
	).Scan(&inc.ID, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create security incident: %w", err)
	}
	return nil
}

func (s *SecurityStore) GetIncident(ctx context.Context, id int64) (*models.SecurityIncident, error) {
	inc, err := scanIncident(s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM security_incidents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security incident: %w", err)
	}
	return inc, nil
}

// UpdateIncidentLocked applies fn to the incident under a row lock and writes
// back its workflow columns. An error from fn aborts without writing.
func (s *SecurityStore) UpdateIncidentLocked(ctx context.Context, id int64, fn func(*models.SecurityIncident) error) (*models.SecurityIncident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin incident update: %w", err)
	}
	defer tx.Rollback()

	inc, err := scanIncident(tx.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM security_incidents WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock security incident: %w", err)
	}

	if err := fn(inc); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE security_incidents SET
			status = $2, assigned_to = $3, investigation_notes = $4, resolved_at = $5,
			response_time_seconds = $6, resolution_time_seconds = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		inc.ID, inc.Status, nullInt64(inc.AssignedTo), inc.InvestigationNotes, nullTime(inc.ResolvedAt),
		nullFloat(inc.ResponseTimeSeconds), nullFloat(inc.ResolutionTimeSeconds),
	).Scan(&inc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update security incident: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit security incident update: %w", err)
	}
	return inc, nil
}

// ListIncidents returns the newest incidents, optionally restricted to one status.
func (s *SecurityStore) ListIncidents(ctx context.Context, status models.IncidentStatus, limit int) ([]models.SecurityIncident, error) {
	query := `SELECT ` + incidentColumns + ` FROM security_incidents`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security incidents: %w", err)
	}
	defer rows.Close()

	incidents := []models.SecurityIncident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security incidents: %w", err)
	}
	return incidents, nil
}

// CleanupResolved deletes resolved incidents created before cutoff. Open,
// investigating and false-positive incidents are kept.
func (s *SecurityStore) CleanupResolved(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM security_incidents WHERE created_at < $1 AND status = $2`,
		cutoff, models.IncidentResolved)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old security incidents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read incident cleanup result: %w", err)
	}
	return n, nil
}

func (s *SecurityStore) BlockIP(ctx context.Context, b *models.BlockedIP) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO blocked_ips (ip, reason, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (ip) DO UPDATE SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at
		RETURNING created_at`,
		b.IP, b.Reason, nullTime(b.ExpiresAt),
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to block ip: %w", err)
	}
	return nil
}

// UnblockIP removes ip from the block list and reports whether it was present.
func (s *SecurityStore) UnblockIP(ctx context.Context, ip string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocked_ips WHERE ip = $1`, ip)
	if err != nil {
		return false, fmt.Errorf("failed to unblock ip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read unblock result: %w", err)
	}
	return n > 0, nil
}

// GetBlockedIP returns the active block for ip, or nil when there is none.
func (s *SecurityStore) GetBlockedIP(ctx context.Context, ip string) (*models.BlockedIP, error) {
	var (
		b         models.BlockedIP
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ip, reason, created_at, expires_at FROM blocked_ips
		WHERE ip = $1 AND (expires_at IS NULL OR expires_at > NOW())`, ip,
	).Scan(&b.IP, &b.Reason, &b.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up blocked ip: %w", err)
	}
	b.ExpiresAt = nullTimePtr(expiresAt)
	return &b, nil
}

func (s *SecurityStore) ActiveBlockedIPs(ctx context.Context) ([]models.BlockedIP, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip, reason, created_at, expires_at FROM blocked_ips
		WHERE expires_at IS NULL OR expires_at > NOW()
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked ips: %w", err)
	}
	defer rows.Close()

	blocked := []models.BlockedIP{}
	for rows.Next() {
		var (
			b         models.BlockedIP
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&b.IP, &b.Reason, &b.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked ip: %w", err)
		}
		b.ExpiresAt = nullTimePtr(expiresAt)
		blocked = append(blocked, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocked ips: %w", err)
	}
	return blocked, nil
}
