package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// ErrAttemptNotFound is returned when no finished attempt matches.
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptRepository handles finished attempt records.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Upsert writes a finished attempt. Replaying the same attempt is harmless.
func (r *AttemptRepository) Upsert(ctx context.Context, a *model.Attempt) error {
	attemptID, err := uuid.Parse(a.AttemptID)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_attempts (attempt_id, student_id, paper_id, status, score, max_score,
		                            correct, incorrect, skipped, time_taken, submitted_at, snapshot)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET status = EXCLUDED.status, score = EXCLUDED.score, max_score = EXCLUDED.max_score,
		     correct = EXCLUDED.correct, incorrect = EXCLUDED.incorrect, skipped = EXCLUDED.skipped,
		     time_taken = EXCLUDED.time_taken, submitted_at = EXCLUDED.submitted_at,
		     snapshot = EXCLUDED.snapshot`,
		attemptID, a.StudentID, a.PaperID, string(a.Status), a.Score, a.MaxScore,
		a.Correct, a.Incorrect, a.Skipped, a.TimeTaken, a.SubmittedAt, []byte(a.Snapshot),
	)
	return err
}

// GetLatest returns the most recent finished attempt of a student on a paper.
func (r *AttemptRepository) GetLatest(ctx context.Context, studentID int, paperID string) (*model.Attempt, error) {
	a := &model.Attempt{}
	var attemptID uuid.UUID
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, student_id, paper_id, status, score, max_score,
		        correct, incorrect, skipped, time_taken, submitted_at
		 FROM exam_attempts
		 WHERE student_id = $1 AND paper_id = $2
		 ORDER BY submitted_at DESC LIMIT 1`, studentID, paperID,
	).Scan(&attemptID, &a.StudentID, &a.PaperID, &status, &a.Score, &a.MaxScore,
		&a.Correct, &a.Incorrect, &a.Skipped, &a.TimeTaken, &a.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	a.AttemptID = attemptID.String()
	a.Status = model.SessionStatus(status)
	return a, nil
}
