package model

import (
	"time"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusNotStarted    SessionStatus = "NOT_STARTED"
	SessionStatusRunning       SessionStatus = "RUNNING"
	SessionStatusPaused        SessionStatus = "PAUSED"
	SessionStatusSubmitted     SessionStatus = "SUBMITTED"
	SessionStatusAutoSubmitted SessionStatus = "AUTO_SUBMITTED"
	SessionStatusAbandoned     SessionStatus = "ABANDONED"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusSubmitted, SessionStatusAutoSubmitted, SessionStatusAbandoned:
		return true
	}
	return false
}

// Answer is the student's response to one question.
type Answer struct {
	Value     *string `json:"value"`
	Flagged   bool    `json:"flagged"`
	TimeSpent int     `json:"time_spent"`
}

// Answered reports whether a value is selected.
func (a Answer) Answered() bool {
	return a.Value != nil
}

// SessionState is the mutable part of an attempt. Remaining values are seconds; -1 marks a
// scope without a time limit.
type SessionState struct {
	PaperID           string            `json:"paper_id" validate:"required"`
	SectionIndex      int               `json:"section_index" validate:"min=0"`
	QuestionIndex     int               `json:"question_index" validate:"min=0"`
	PaperRemaining    int               `json:"paper_remaining" validate:"min=0"`
	SectionRemaining  int               `json:"section_remaining" validate:"min=-1"`
	QuestionRemaining int               `json:"question_remaining" validate:"min=-1"`
	QuestionElapsed   int               `json:"question_elapsed" validate:"min=0"`
	Answers           map[string]Answer `json:"answers"`
}

// Clone returns a deep copy so callers can hold state outside the session lock.
func (s SessionState) Clone() SessionState {
	out := s
	out.Answers = make(map[string]Answer, len(s.Answers))
	for id, a := range s.Answers {
		if a.Value != nil {
			v := *a.Value
			a.Value = &v
		}
		out.Answers[id] = a
	}
	return out
}

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot is the durable, versioned representation of an attempt.
type Snapshot struct {
	Version   int           `json:"version" validate:"eq=1"`
	AttemptID string        `json:"attempt_id" validate:"required,uuid"`
	StudentID int           `json:"student_id" validate:"min=0"`
	Status    SessionStatus `json:"status" validate:"oneof=RUNNING PAUSED SUBMITTED AUTO_SUBMITTED ABANDONED"`
	SavedAt   time.Time     `json:"saved_at" validate:"required"`
	State     SessionState  `json:"state"`
}
