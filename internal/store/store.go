package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS interview_results (
	id                      uuid PRIMARY KEY,
	fullname                text NOT NULL DEFAULT '',
	email                   text NOT NULL DEFAULT '',
	interview_id            text NOT NULL,
	conversation_transcript jsonb NOT NULL,
	recommendations         text NOT NULL DEFAULT '',
	completed_at            timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS interview_results_interview_id_idx ON interview_results (interview_id);`

// EnsureSchema creates the results table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
