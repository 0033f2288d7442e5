package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Result is one completed interview as stored in interview_results.
// ConversationTranscript holds the parsed feedback document verbatim.
type Result struct {
	ID                     uuid.UUID       `json:"id"`
	Fullname               string          `json:"fullname"`
	Email                  string          `json:"email"`
	InterviewID            string          `json:"interview_id"`
	ConversationTranscript json.RawMessage `json:"conversation_transcript"`
	Recommendations        string          `json:"recommendations"`
	CompletedAt            time.Time       `json:"completed_at"`
}

// InsertResult writes r and returns its id. A nil id is replaced with a new one.
func (s *Store) InsertResult(ctx context.Context, r Result) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interview_results (id, fullname, email, interview_id, conversation_transcript, recommendations, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Fullname, r.Email, r.InterviewID, r.ConversationTranscript, r.Recommendations, r.CompletedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert result: %w", err)
	}
	return r.ID, nil
}

// ListResults returns every stored result, newest first.
func (s *Store) ListResults(ctx context.Context) ([]Result, error) {
	return s.queryResults(ctx, `
		SELECT id, fullname, email, interview_id, conversation_transcript, recommendations, completed_at
		FROM interview_results
		ORDER BY completed_at DESC`)
}

// ListResultsByInterview returns the results recorded for one interview.
func (s *Store) ListResultsByInterview(ctx context.Context, interviewID string) ([]Result, error) {
	return s.queryResults(ctx, `
		SELECT id, fullname, email, interview_id, conversation_transcript, recommendations, completed_at
		FROM interview_results
		WHERE interview_id = $1
		ORDER BY completed_at DESC`, interviewID)
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		var transcript []byte
		err := row.Scan(&r.ID, &r.Fullname, &r.Email, &r.InterviewID, &transcript, &r.Recommendations, &r.CompletedAt)
		r.ConversationTranscript = transcript
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}
	return results, nil
}
