package session

import (
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/timer"
)

// QuestionStatus is the palette status of a question. Flagged wins over answered.
type QuestionStatus string

const (
	QuestionAnswered   QuestionStatus = "answered"
	QuestionFlagged    QuestionStatus = "flagged"
	QuestionUnanswered QuestionStatus = "unanswered"
)

// QuestionView is one cell of the question palette.
type QuestionView struct {
	Index     int            `json:"index"`
	ID        string         `json:"id"`
	Status    QuestionStatus `json:"status"`
	Answered  bool           `json:"answered"`
	Flagged   bool           `json:"flagged"`
	TimeSpent int            `json:"time_spent"`
	Current   bool           `json:"current"`
}

// SectionView groups the palette by section.
type SectionView struct {
	Index     int            `json:"index"`
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Locked    bool           `json:"locked"`
	Answered  int            `json:"answered"`
	Flagged   int            `json:"flagged"`
	Total     int            `json:"total"`
	Questions []QuestionView `json:"questions"`
}

// Progress counts answers over the whole paper.
type Progress struct {
	Answered   int `json:"answered"`
	Flagged    int `json:"flagged"`
	Unanswered int `json:"unanswered"`
	Total      int `json:"total"`
}

// View is computed from the session state on demand and never stored.
type View struct {
	AttemptID       string              `json:"attempt_id"`
	PaperID         string              `json:"paper_id"`
	Title           string              `json:"title"`
	Status          model.SessionStatus `json:"status"`
	SectionIndex    int                 `json:"section_index"`
	QuestionIndex   int                 `json:"question_index"`
	Remaining       timer.Remaining     `json:"remaining"`
	CurrentQuestion *model.Question     `json:"current_question,omitempty"`
	Sections        []SectionView       `json:"sections"`
	Progress        Progress            `json:"progress"`
}

func buildView(attemptID string, paper *model.Paper, status model.SessionStatus, st model.SessionState) View {
	v := View{
		AttemptID:     attemptID,
		PaperID:       st.PaperID,
		Status:        status,
		SectionIndex:  st.SectionIndex,
		QuestionIndex: st.QuestionIndex,
		Remaining: timer.Remaining{
			Paper:    st.PaperRemaining,
			Section:  st.SectionRemaining,
			Question: st.QuestionRemaining,
		},
		Sections: []SectionView{},
	}
	if paper == nil {
		return v
	}
	v.Title = paper.Title

	for i, sec := range paper.Sections {
		sv := SectionView{
			Index:     i,
			ID:        sec.ID,
			Title:     sec.Title,
			Locked:    !paper.FreeNavigation && i < st.SectionIndex,
			Total:     len(sec.Questions),
			Questions: make([]QuestionView, 0, len(sec.Questions)),
		}
		for j, q := range sec.Questions {
			a := st.Answers[q.ID]
			current := i == st.SectionIndex && j == st.QuestionIndex
			qv := QuestionView{
				Index:     j,
				ID:        q.ID,
				Answered:  a.Answered(),
				Flagged:   a.Flagged,
				TimeSpent: a.TimeSpent,
				Current:   current,
			}
			if current {
				qv.TimeSpent += st.QuestionElapsed
			}
			switch {
			case a.Flagged:
				qv.Status = QuestionFlagged
			case a.Answered():
				qv.Status = QuestionAnswered
			default:
				qv.Status = QuestionUnanswered
			}
			if qv.Answered {
				sv.Answered++
			}
			if qv.Flagged {
				sv.Flagged++
			}
			sv.Questions = append(sv.Questions, qv)
		}
		v.Progress.Answered += sv.Answered
		v.Progress.Flagged += sv.Flagged
		v.Progress.Total += sv.Total
		v.Sections = append(v.Sections, sv)
	}
	v.Progress.Unanswered = v.Progress.Total - v.Progress.Answered

	if q := paper.QuestionAt(st.SectionIndex, st.QuestionIndex); q != nil {
		cur := *q
		cur.AnswerKey = ""
		v.CurrentQuestion = &cur
	}
	return v
}
