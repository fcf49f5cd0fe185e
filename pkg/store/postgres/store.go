package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freyahq/intervox/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed interview store. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// CreateInterview implements [store.Store].
func (s *Store) CreateInterview(ctx context.Context, iv store.Interview) error {
	const q = `
		INSERT INTO interviews (id, position, language, started_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, iv.ID, iv.Position, iv.Language, iv.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create interview: %w", err)
	}
	return nil
}

// FinishInterview implements [store.Store].
func (s *Store) FinishInterview(ctx context.Context, id string, endedAt time.Time, questionsAsked int) error {
	const q = `
		UPDATE interviews
		SET    ended_at = $2, questions_asked = $3
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, endedAt, questionsAsked)
	if err != nil {
		return fmt.Errorf("postgres store: finish interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendEntry implements [store.Store].
func (s *Store) AppendEntry(ctx context.Context, interviewID string, e store.Entry) error {
	const q = `
		INSERT INTO interview_entries (interview_id, role, content, turn, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, interviewID, string(e.Role), e.Content, int64(e.Turn), e.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres store: append entry: %w", err)
	}
	return nil
}

// History implements [store.Store]. When limit > 0 the newest limit entries
// are selected; the result is always returned oldest first.
func (s *Store) History(ctx context.Context, interviewID string, limit int) ([]store.Entry, error) {
	q := `
		SELECT role, content, turn, timestamp
		FROM   interview_entries
		WHERE  interview_id = $1
		ORDER  BY timestamp, id`
	args := []any{interviewID}

	if limit > 0 {
		// Select the newest rows, then restore chronological order.
		q = `
			SELECT role, content, turn, timestamp FROM (
			    SELECT role, content, turn, timestamp, id
			    FROM   interview_entries
			    WHERE  interview_id = $1
			    ORDER  BY timestamp DESC, id DESC
			    LIMIT  $2
			) newest
			ORDER BY timestamp, id`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Entry, error) {
		var (
			e    store.Entry
			role string
			turn int64
		)
		if err := row.Scan(&role, &e.Content, &turn, &e.Timestamp); err != nil {
			return store.Entry{}, err
		}
		e.Role = store.Role(role)
		e.Turn = uint64(turn)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	return entries, nil
}

// Interview returns the interview record for id, or [store.ErrNotFound].
func (s *Store) Interview(ctx context.Context, id string) (store.Interview, error) {
	const q = `
		SELECT id, position, language, started_at, ended_at, questions_asked
		FROM   interviews
		WHERE  id = $1`

	var (
		iv      store.Interview
		endedAt sql.NullTime
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&iv.ID,
		&iv.Position,
		&iv.Language,
		&iv.StartedAt,
		&endedAt,
		&iv.QuestionsAsked,
	)
	if err == pgx.ErrNoRows {
		return store.Interview{}, store.ErrNotFound
	}
	if err != nil {
		return store.Interview{}, fmt.Errorf("postgres store: get interview: %w", err)
	}
	if endedAt.Valid {
		iv.EndedAt = endedAt.Time
	}
	return iv, nil
}

// Ping verifies database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
