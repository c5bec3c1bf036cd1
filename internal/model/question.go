package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// QuestionType decides how an answer is compared with the key.
type QuestionType string

const (
	// QuestionTypeSingle takes one option. It is the default for an empty type.
	QuestionTypeSingle QuestionType = "RADIOBUTTON"
	// QuestionTypeMultiple takes a comma-separated set of options, e.g. "0,2".
	QuestionTypeMultiple QuestionType = "CHECKBOX"
)

// Question is a single item of a paper. Payload (prompt, options, media) is opaque to the
// session engine and forwarded to the client as-is.
type Question struct {
	ID               string          `json:"id" validate:"required,max=128"`
	Type             QuestionType    `json:"type,omitempty" validate:"omitempty,oneof=RADIOBUTTON CHECKBOX"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	TimeLimitSeconds int             `json:"time_limit_seconds,omitempty" validate:"min=0"`
	AnswerKey        string          `json:"answer_key,omitempty"`
}

// Multiple reports whether the question takes a set of options.
func (q *Question) Multiple() bool {
	return q.Type == QuestionTypeMultiple
}

// Normalize returns the canonical form of value. For CHECKBOX questions that is the
// sorted, de-duplicated option list, so "1,0" and "0,1,1" both become "0,1". An empty
// result means nothing is selected.
func (q *Question) Normalize(value string) string {
	if !q.Multiple() {
		return value
	}
	seen := make(map[string]struct{})
	opts := make([]string, 0, strings.Count(value, ",")+1)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		opts = append(opts, part)
	}
	sort.Strings(opts)
	return strings.Join(opts, ",")
}

// Graded reports whether the question has an answer key.
func (q *Question) Graded() bool {
	return q.Normalize(q.AnswerKey) != ""
}

// Matches reports whether value is correct. CHECKBOX answers must select exactly the
// key's option set.
func (q *Question) Matches(value string) bool {
	return q.Graded() && q.Normalize(value) == q.Normalize(q.AnswerKey)
}

// AnswerRequest is the payload for selecting (or clearing, with a null value) an answer.
type AnswerRequest struct {
	Value *string `json:"value" binding:"omitempty,max=500"`
}

// NavigateRequest is the payload for jumping to a question.
type NavigateRequest struct {
	SectionIndex  *int `json:"section_index" binding:"required,min=0"`
	QuestionIndex *int `json:"question_index" binding:"required,min=0"`
}
