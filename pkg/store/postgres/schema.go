// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// All operations share a single [pgxpool.Pool]. [Migrate] is idempotent and
// runs automatically from [NewStore], so no external migration tooling is
// required.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.CreateInterview(ctx, iv)
//	_ = st.AppendEntry(ctx, iv.ID, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id              TEXT         PRIMARY KEY,
    position        TEXT         NOT NULL DEFAULT '',
    language        TEXT         NOT NULL DEFAULT '',
    started_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at        TIMESTAMPTZ,
    questions_asked INT          NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_interviews_started_at
    ON interviews (started_at);
`

const ddlInterviewEntries = `
CREATE TABLE IF NOT EXISTS interview_entries (
    id           BIGSERIAL    PRIMARY KEY,
    interview_id TEXT         NOT NULL REFERENCES interviews (id) ON DELETE CASCADE,
    role         TEXT         NOT NULL,
    content      TEXT         NOT NULL,
    turn         BIGINT       NOT NULL DEFAULT 0,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_entries_interview_id
    ON interview_entries (interview_id);

CREATE INDEX IF NOT EXISTS idx_interview_entries_interview_timestamp
    ON interview_entries (interview_id, timestamp);
`

// Migrate creates or ensures all required database tables exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlInterviews,
		ddlInterviewEntries,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
