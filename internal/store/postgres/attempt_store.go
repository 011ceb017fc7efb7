package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL. One row per
// run of the resolution state machine, successful or not.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates an AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptSelectCols = `id, market_id, stage, error_kind, outcome,
	confidence, evidence_cid, tx_hash, gas_used, cost_usd, duration_ms, created_at`

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var a domain.Attempt
	var durationMS int64
	if err := row.Scan(
		&a.ID, &a.MarketID, &a.Stage, &a.ErrorKind, &a.Outcome,
		&a.Confidence, &a.EvidenceCID, &a.TxHash, &a.GasUsed,
		&a.CostUSD, &durationMS, &a.CreatedAt,
	); err != nil {
		return domain.Attempt{}, err
	}
	a.Duration = time.Duration(durationMS) * time.Millisecond
	return a, nil
}

// Record inserts one attempt. A missing ID or timestamp is filled in here so
// callers only describe what happened.
func (s *AttemptStore) Record(ctx context.Context, a domain.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO resolution_attempts (
			id, market_id, stage, error_kind, outcome,
			confidence, evidence_cid, tx_hash, gas_used, cost_usd,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.MarketID, string(a.Stage), a.ErrorKind, a.Outcome,
		a.Confidence, a.EvidenceCID, a.TxHash, int64(a.GasUsed), a.CostUSD,
		a.Duration.Milliseconds(), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record attempt for %s: %w", a.MarketID, err)
	}
	return nil
}

// Latest returns the most recent attempt for a market or domain.ErrNotFound.
func (s *AttemptStore) Latest(ctx context.Context, marketID string) (domain.Attempt, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM resolution_attempts
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, attemptSelectCols)

	a, err := scanAttempt(s.pool.QueryRow(ctx, query, marketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, fmt.Errorf("postgres: latest attempt for %s: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("postgres: latest attempt for %s: %w", marketID, err)
	}
	return a, nil
}

// History returns up to limit attempts for a market, newest first.
func (s *AttemptStore) History(ctx context.Context, marketID string, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM resolution_attempts
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, attemptSelectCols)

	rows, err := s.pool.Query(ctx, query, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: attempt history for %s: %w", marketID, err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListBefore returns all attempts recorded strictly before the cutoff, for
// archival.
func (s *AttemptStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Attempt, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM resolution_attempts
		WHERE created_at < $1
		ORDER BY created_at`, attemptSelectCols)

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// DeleteBefore removes all attempts recorded strictly before the cutoff and
// returns the number deleted. Called by the archiver after a successful
// upload.
func (s *AttemptStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM resolution_attempts WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete attempts before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.AttemptStore = (*AttemptStore)(nil)
