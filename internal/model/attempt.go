package model

import (
	"encoding/json"
	"time"
)

// Attempt is the durable record of a finished session, written to exam_attempts.
type Attempt struct {
	AttemptID   string          `json:"attempt_id"`
	StudentID   int             `json:"student_id"`
	PaperID     string          `json:"paper_id"`
	Status      SessionStatus   `json:"status"`
	Score       float64         `json:"score"`
	MaxScore    float64         `json:"max_score"`
	Correct     int             `json:"correct"`
	Incorrect   int             `json:"incorrect"`
	Skipped     int             `json:"skipped"`
	TimeTaken   int             `json:"time_taken"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
}
