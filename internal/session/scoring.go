package session

import (
	"github.com/stemsi/exstem-session/internal/model"
)

// Outcome is the graded status of a single question.
type Outcome string

const (
	OutcomeCorrect   Outcome = "CORRECT"
	OutcomeIncorrect Outcome = "INCORRECT"
	OutcomeSkip      Outcome = "SKIP"
	// OutcomeUngraded marks an answered question without an answer key.
	OutcomeUngraded Outcome = "NA"
)

// QuestionResult is the per-question line of a Result.
type QuestionResult struct {
	ID        string  `json:"id"`
	Outcome   Outcome `json:"outcome"`
	Score     float64 `json:"score"`
	TimeSpent int     `json:"time_spent"`
}

// SectionResult aggregates a section.
type SectionResult struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Correct   int              `json:"correct"`
	Incorrect int              `json:"incorrect"`
	Skipped   int              `json:"skipped"`
	Score     float64          `json:"score"`
	TimeTaken int              `json:"time_taken"`
	Questions []QuestionResult `json:"questions"`
}

// Result is the submission summary of an attempt.
type Result struct {
	AttemptID string              `json:"attempt_id"`
	PaperID   string              `json:"paper_id"`
	Status    model.SessionStatus `json:"status"`
	Correct   int                 `json:"correct"`
	Incorrect int                 `json:"incorrect"`
	Skipped   int                 `json:"skipped"`
	Attempted int                 `json:"attempted"`
	Total     int                 `json:"total"`
	Score     float64             `json:"score"`
	MaxScore  float64             `json:"max_score"`
	TimeTaken int                 `json:"time_taken"`
	Sections  []SectionResult     `json:"sections"`
}

// Score grades st against the paper's answer keys. Each correct answer earns
// PerQuestionScore, each incorrect one loses NegativeMarks; the total never goes below 0.
// Attempted counts graded answers only.
func Score(attemptID string, paper *model.Paper, status model.SessionStatus, st model.SessionState) Result {
	res := Result{
		AttemptID: attemptID,
		PaperID:   st.PaperID,
		Status:    status,
		Sections:  []SectionResult{},
	}
	if paper == nil {
		return res
	}

	var raw float64
	for _, sec := range paper.Sections {
		sr := SectionResult{ID: sec.ID, Title: sec.Title, Questions: make([]QuestionResult, 0, len(sec.Questions))}
		for _, q := range sec.Questions {
			a := st.Answers[q.ID]
			qr := QuestionResult{ID: q.ID, TimeSpent: a.TimeSpent}

			switch {
			case !a.Answered():
				qr.Outcome = OutcomeSkip
				sr.Skipped++
			case !q.Graded():
				qr.Outcome = OutcomeUngraded
			case q.Matches(*a.Value):
				qr.Outcome = OutcomeCorrect
				qr.Score = paper.PerQuestionScore
				sr.Correct++
				res.Attempted++
			default:
				qr.Outcome = OutcomeIncorrect
				qr.Score = -paper.NegativeMarks
				sr.Incorrect++
				res.Attempted++
			}
			if q.Graded() {
				res.MaxScore += paper.PerQuestionScore
			}

			sr.Score += qr.Score
			sr.TimeTaken += qr.TimeSpent
			sr.Questions = append(sr.Questions, qr)
		}

		res.Correct += sr.Correct
		res.Incorrect += sr.Incorrect
		res.Skipped += sr.Skipped
		res.Total += len(sec.Questions)
		raw += sr.Score
		res.Sections = append(res.Sections, sr)
	}

	if raw > 0 {
		res.Score = raw
	}
	res.TimeTaken = paper.DurationSeconds - st.PaperRemaining
	if res.TimeTaken < 0 {
		res.TimeTaken = 0
	}
	return res
}
