package session

import (
	"fmt"

	"github.com/stemsi/exstem-session/internal/model"
)

// InvalidPaperError is returned by Start when the paper cannot host a session.
type InvalidPaperError struct {
	Reason string
}

func (e *InvalidPaperError) Error() string {
	return "invalid paper: " + e.Reason
}

// InvalidNavigationError is returned when a target position is out of range or locked.
// The session is left unchanged; the caller may retry with a valid position.
type InvalidNavigationError struct {
	SectionIndex  int
	QuestionIndex int
	Reason        string
}

func (e *InvalidNavigationError) Error() string {
	return fmt.Sprintf("invalid navigation to section %d question %d: %s", e.SectionIndex, e.QuestionIndex, e.Reason)
}

// StateTransitionError is returned when an operation is not allowed in the current status.
type StateTransitionError struct {
	Op     string
	Status model.SessionStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.Status)
}

// UnknownQuestionError is returned when a question id is not part of the paper.
type UnknownQuestionError struct {
	QuestionID string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("question %q is not part of this paper", e.QuestionID)
}

// InvalidSnapshotError is returned by Restore when a snapshot does not fit the paper.
type InvalidSnapshotError struct {
	Reason string
}

func (e *InvalidSnapshotError) Error() string {
	return "invalid snapshot: " + e.Reason
}
