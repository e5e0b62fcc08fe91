// Package dashboard records resolved session outcomes to Postgres and
// serves the read-side aggregates over HTTP for the operator dashboard.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"pvb-go/session"
)

const createOutcomesTable = `
CREATE TABLE IF NOT EXISTS session_outcomes (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	command TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_outcomes_command ON session_outcomes (command);
CREATE INDEX IF NOT EXISTS idx_session_outcomes_ended_at ON session_outcomes (ended_at);`

// CommandStat is one command's usage count and mean session length.
type CommandStat struct {
	Command     string  `json:"command"`
	Sessions    int64   `json:"sessions"`
	AvgDuration float64 `json:"avg_duration_ms"`
}

// OutcomeStat is one terminal outcome's share of all sessions.
type OutcomeStat struct {
	Outcome  string `json:"outcome"`
	Sessions int64  `json:"sessions"`
}

// ActivityBucket is one hour's worth of resolved sessions.
type ActivityBucket struct {
	Hour     time.Time `json:"hour"`
	Sessions int64     `json:"sessions"`
}

// Store persists session outcomes. It is optional: the bot runs without a
// database, it just records nothing.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewStore connects the analytics pool and ensures the schema exists.
func NewStore(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnIdleTime = 5 * time.Minute
	config.ConnConfig.RuntimeParams = map[string]string{
		"application_name": "pvb-dashboard",
		"timezone":         "UTC",
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createOutcomesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{pool: pool, log: log.With().Str("component", "analytics").Logger()}, nil
}

func (st *Store) Close() {
	st.pool.Close()
}

// Record writes one resolved session. Failures are logged, not propagated;
// analytics must never disturb the interaction path.
func (st *Store) Record(ctx context.Context, rec session.Record) {
	const query = `
		INSERT INTO session_outcomes (session_id, command, owner_id, outcome, duration_ms, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := st.pool.Exec(ctx, query,
		rec.SessionID, rec.Command, rec.OwnerID, rec.Outcome,
		rec.Duration.Milliseconds(), rec.EndedAt)
	if err != nil {
		st.log.Warn().Err(err).Str("session", rec.SessionID).Msg("outcome insert failed")
	}
}

// CommandStats aggregates sessions by command over the window.
func (st *Store) CommandStats(ctx context.Context, since time.Time) ([]CommandStat, error) {
	const query = `
		SELECT command, COUNT(*), AVG(duration_ms)
		FROM session_outcomes
		WHERE ended_at >= $1
		GROUP BY command
		ORDER BY COUNT(*) DESC`
	rows, err := st.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("command stats: %w", err)
	}
	defer rows.Close()

	var stats []CommandStat
	for rows.Next() {
		var s CommandStat
		if err := rows.Scan(&s.Command, &s.Sessions, &s.AvgDuration); err != nil {
			return nil, fmt.Errorf("command stats scan: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// OutcomeStats aggregates sessions by terminal outcome over the window.
func (st *Store) OutcomeStats(ctx context.Context, since time.Time) ([]OutcomeStat, error) {
	const query = `
		SELECT outcome, COUNT(*)
		FROM session_outcomes
		WHERE ended_at >= $1
		GROUP BY outcome
		ORDER BY COUNT(*) DESC`
	rows, err := st.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("outcome stats: %w", err)
	}
	defer rows.Close()

	var stats []OutcomeStat
	for rows.Next() {
		var s OutcomeStat
		if err := rows.Scan(&s.Outcome, &s.Sessions); err != nil {
			return nil, fmt.Errorf("outcome stats scan: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ActivityStats buckets resolved sessions per hour over the window.
func (st *Store) ActivityStats(ctx context.Context, since time.Time) ([]ActivityBucket, error) {
	const query = `
		SELECT date_trunc('hour', ended_at) AS hour, COUNT(*)
		FROM session_outcomes
		WHERE ended_at >= $1
		GROUP BY hour
		ORDER BY hour`
	rows, err := st.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	defer rows.Close()

	var buckets []ActivityBucket
	for rows.Next() {
		var b ActivityBucket
		if err := rows.Scan(&b.Hour, &b.Sessions); err != nil {
			return nil, fmt.Errorf("activity stats scan: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
