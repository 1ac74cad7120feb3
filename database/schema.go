package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements are applied in order by Migrate. Every statement is idempotent.
// documents and templates belong to the document service; the minimal shape here
// is what the dashboard joins against.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS templates (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(200) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		template_id BIGINT REFERENCES templates(id),
		title       VARCHAR(300) NOT NULL DEFAULT '',
		status      VARCHAR(30) NOT NULL DEFAULT 'draft',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS landing_page_visits (
		id                     BIGSERIAL PRIMARY KEY,
		session_id             VARCHAR(100) NOT NULL UNIQUE,
		user_id                BIGINT,
		landing_page           VARCHAR(500) NOT NULL DEFAULT '',
		referrer               VARCHAR(500) NOT NULL DEFAULT '',
		ip_address             VARCHAR(45) NOT NULL DEFAULT '',
		user_agent             TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		first_interaction_at   TIMESTAMPTZ,
		last_interaction_at    TIMESTAMPTZ,
		active_time_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
		time_on_page_seconds   DOUBLE PRECISION NOT NULL DEFAULT 0,
		templates_viewed_count INTEGER NOT NULL DEFAULT 0,
		scroll_depth           DOUBLE PRECISION NOT NULL DEFAULT 0,
		form_completion        DOUBLE PRECISION NOT NULL DEFAULT 0,
		engagement_depth       INTEGER NOT NULL DEFAULT 0,
		last_interaction_field VARCHAR(100) NOT NULL DEFAULT '',
		pages_viewed           JSONB NOT NULL DEFAULT '[]',
		template_interactions  JSONB NOT NULL DEFAULT '[]',
		form_interactions      JSONB NOT NULL DEFAULT '[]',
		bounce                 BOOLEAN NOT NULL DEFAULT TRUE,
		bounce_type            VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_document       BOOLEAN NOT NULL DEFAULT FALSE,
		registered             BOOLEAN NOT NULL DEFAULT FALSE,
		downloaded_document    BOOLEAN NOT NULL DEFAULT FALSE,
		converted_to_paid      BOOLEAN NOT NULL DEFAULT FALSE,
		converted_at           TIMESTAMPTZ,
		session_quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
		conversion_probability DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS document_visits (
		id                   BIGSERIAL PRIMARY KEY,
		document_id          BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		visit_type           VARCHAR(20) NOT NULL,
		ip_address           VARCHAR(45),
		user_agent           TEXT,
		referrer             VARCHAR(500),
		browser_name         VARCHAR(50) NOT NULL DEFAULT 'Unknown',
		os_name              VARCHAR(50) NOT NULL DEFAULT 'Unknown',
		device_type          VARCHAR(20) NOT NULL DEFAULT 'unknown',
		country              VARCHAR(100),
		city                 VARCHAR(100),
		latitude             DOUBLE PRECISION,
		longitude            DOUBLE PRECISION,
		reading_time_seconds INTEGER NOT NULL DEFAULT 0,
		bounce               BOOLEAN NOT NULL DEFAULT FALSE,
		device_fingerprint   VARCHAR(128),
		metadata             JSONB,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS page_visits (
		id             BIGSERIAL PRIMARY KEY,
		user_id        BIGINT,
		session_id     VARCHAR(100) NOT NULL,
		page_url       VARCHAR(500) NOT NULL,
		page_title     VARCHAR(200) NOT NULL DEFAULT '',
		referrer       VARCHAR(500) NOT NULL DEFAULT '',
		ip_address     VARCHAR(45) NOT NULL DEFAULT '',
		user_agent     TEXT NOT NULL DEFAULT '',
		visit_duration INTEGER,
		metadata       JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS security_incidents (
		id                      BIGSERIAL PRIMARY KEY,
		alert_id                VARCHAR(100) NOT NULL UNIQUE,
		threat_level            VARCHAR(20) NOT NULL,
		alert_type              VARCHAR(50) NOT NULL,
		title                   VARCHAR(200) NOT NULL,
		description             TEXT NOT NULL,
		affected_user_id        BIGINT,
		source_ip               VARCHAR(45) NOT NULL DEFAULT '',
		user_agent              TEXT NOT NULL DEFAULT '',
		attack_vector           VARCHAR(100) NOT NULL DEFAULT '',
		attack_pattern          JSONB,
		evidence                JSONB,
		status                  VARCHAR(20) NOT NULL DEFAULT 'open',
		assigned_to             BIGINT,
		investigation_notes     TEXT NOT NULL DEFAULT '',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at             TIMESTAMPTZ,
		response_time_seconds   DOUBLE PRECISION,
		resolution_time_seconds DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS blocked_ips (
		ip         VARCHAR(45) PRIMARY KEY,
		reason     VARCHAR(200) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS ix_documents_user_id_status ON documents (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS ix_documents_template_id ON documents (template_id)`,
	`CREATE INDEX IF NOT EXISTS ix_documents_created_at ON documents (created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_landing_page_visits_user_id ON landing_page_visits (user_id)`,
	`CREATE INDEX IF NOT EXISTS ix_landing_page_visits_last_interaction_at ON landing_page_visits (last_interaction_at)`,
	`CREATE INDEX IF NOT EXISTS ix_landing_page_visits_converted_at ON landing_page_visits (converted_at)`,
	`CREATE INDEX IF NOT EXISTS ix_document_visits_document_id ON document_visits (document_id)`,
	`CREATE INDEX IF NOT EXISTS ix_document_visits_created_at ON document_visits (created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_page_visits_session_id ON page_visits (session_id)`,
	`CREATE INDEX IF NOT EXISTS ix_page_visits_created_at ON page_visits (created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_page_visits_user_id_created_at ON page_visits (user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_security_incidents_status_created_at ON security_incidents (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_security_incidents_source_ip ON security_incidents (source_ip)`,
}

// Migrate applies the schema inside one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
