package websocket

import (
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/timer"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionClear    Action = "clear"
	ActionFlag     Action = "flag"
	ActionNavigate Action = "navigate"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload carries every client action; fields not used by an action are ignored.
type RequestPayload struct {
	Action        Action `json:"action"`
	QID           string `json:"q_id,omitempty"`
	Answer        string `json:"ans,omitempty"`
	SectionIndex  *int   `json:"section_index,omitempty"`
	QuestionIndex *int   `json:"question_index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventTick      Event = "tick"
	EventExpire    Event = "expire"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries the full navigation view. It is sent on connect and after
// every state change.
type StateResponse struct {
	Event Event        `json:"event"`
	View  session.View `json:"view"`
}

type TickResponse struct {
	Event     Event           `json:"event"`
	Remaining timer.Remaining `json:"remaining"`
}

type ExpireResponse struct {
	Event Event       `json:"event"`
	Scope timer.Scope `json:"scope"`
}

type SubmittedResponse struct {
	Event  Event          `json:"event"`
	Result session.Result `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
