package model

import (
	"errors"
	"fmt"

	govalidator "github.com/go-playground/validator/v10"
)

// Paper is a complete timed test. It is loaded once per attempt and never mutated.
type Paper struct {
	ID               string    `json:"id" validate:"required,max=128"`
	Title            string    `json:"title" validate:"max=255"`
	DurationSeconds  int       `json:"duration_seconds" validate:"min=1"`
	FreeNavigation   bool      `json:"free_navigation"`
	PerQuestionScore float64   `json:"per_question_score" validate:"min=0"`
	NegativeMarks    float64   `json:"negative_marks" validate:"min=0"`
	Sections         []Section `json:"sections" validate:"required,min=1,dive"`
}

// Section groups questions. DurationSeconds of 0 means the section is not timed on its own.
type Section struct {
	ID              string     `json:"id" validate:"required,max=128"`
	Title           string     `json:"title" validate:"max=255"`
	DurationSeconds int        `json:"duration_seconds" validate:"min=0"`
	Questions       []Question `json:"questions" validate:"required,min=1,dive"`
}

// SectionCount returns the number of sections in the paper.
func (p *Paper) SectionCount() int {
	return len(p.Sections)
}

// QuestionCount returns the number of questions across all sections.
func (p *Paper) QuestionCount() int {
	n := 0
	for i := range p.Sections {
		n += len(p.Sections[i].Questions)
	}
	return n
}

// QuestionAt returns the question at the given position, or nil when out of range.
func (p *Paper) QuestionAt(section, question int) *Question {
	if section < 0 || section >= len(p.Sections) {
		return nil
	}
	qs := p.Sections[section].Questions
	if question < 0 || question >= len(qs) {
		return nil
	}
	return &qs[question]
}

// HasQuestion reports whether id belongs to the paper.
func (p *Paper) HasQuestion(id string) bool {
	return p.Question(id) != nil
}

// Question returns the question with the given id, or nil.
func (p *Paper) Question(id string) *Question {
	for i := range p.Sections {
		for j := range p.Sections[i].Questions {
			if p.Sections[i].Questions[j].ID == id {
				return &p.Sections[i].Questions[j]
			}
		}
	}
	return nil
}

// ForStudent returns a copy of the paper with answer keys stripped.
func (p *Paper) ForStudent() *Paper {
	out := *p
	out.Sections = make([]Section, len(p.Sections))
	for i, sec := range p.Sections {
		out.Sections[i] = sec
		out.Sections[i].Questions = make([]Question, len(sec.Questions))
		for j, q := range sec.Questions {
			q.AnswerKey = ""
			out.Sections[i].Questions[j] = q
		}
	}
	return &out
}

var paperValidate = govalidator.New(govalidator.WithRequiredStructEnabled())

// Validate checks the paper structure: tag constraints plus question id uniqueness.
func (p *Paper) Validate() error {
	if p == nil {
		return errors.New("paper is nil")
	}
	if err := paperValidate.Struct(p); err != nil {
		var ve govalidator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%s failed on '%s'", fe.Namespace(), fe.Tag())
		}
		return err
	}

	seen := make(map[string]struct{}, p.QuestionCount())
	for i := range p.Sections {
		for _, q := range p.Sections[i].Questions {
			if _, dup := seen[q.ID]; dup {
				return fmt.Errorf("duplicate question id %q", q.ID)
			}
			seen[q.ID] = struct{}{}
		}
	}
	return nil
}
