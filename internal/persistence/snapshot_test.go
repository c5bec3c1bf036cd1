package persistence

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

func strPtr(s string) *string { return &s }

func sampleSnapshot(status model.SessionStatus, savedAt time.Time) model.Snapshot {
	return model.Snapshot{
		Version:   model.SnapshotVersion,
		AttemptID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		StudentID: 42,
		Status:    status,
		SavedAt:   savedAt,
		State: model.SessionState{
			PaperID:           "ssc-cgl-2023",
			SectionIndex:      1,
			QuestionIndex:     2,
			PaperRemaining:    300,
			SectionRemaining:  120,
			QuestionRemaining: -1,
			QuestionElapsed:   7,
			Answers: map[string]model.Answer{
				"q1": {Value: strPtr("B"), TimeSpent: 31},
				"q2": {Flagged: true, TimeSpent: 12},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := sampleSnapshot(model.SessionStatusRunning, time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))

	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(got.State, snap.State) {
		t.Fatalf("state mismatch:\nexpected %+v\ngot      %+v", snap.State, got.State)
	}
	if !got.SavedAt.Equal(snap.SavedAt) || got.AttemptID != snap.AttemptID || got.Status != snap.Status {
		t.Fatalf("header mismatch: %+v", got)
	}
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	valid, _ := Encode(sampleSnapshot(model.SessionStatusRunning, time.Now()))

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("{not json")},
		{name: "wrong version", data: []byte(`{"version":9,"attempt_id":"1b4e28ba-2fa1-11d2-883f-0016d3cca427","status":"RUNNING","saved_at":"2026-01-01T00:00:00Z","state":{"paper_id":"p"}}`)},
		{name: "bad attempt id", data: []byte(`{"version":1,"attempt_id":"nope","status":"RUNNING","saved_at":"2026-01-01T00:00:00Z","state":{"paper_id":"p"}}`)},
		{name: "unknown status", data: []byte(`{"version":1,"attempt_id":"1b4e28ba-2fa1-11d2-883f-0016d3cca427","status":"WAT","saved_at":"2026-01-01T00:00:00Z","state":{"paper_id":"p"}}`)},
		{name: "negative remaining", data: []byte(`{"version":1,"attempt_id":"1b4e28ba-2fa1-11d2-883f-0016d3cca427","status":"RUNNING","saved_at":"2026-01-01T00:00:00Z","state":{"paper_id":"p","paper_remaining":-5}}`)},
		{name: "truncated", data: valid[:len(valid)/2]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if !errors.Is(err, ErrCorruptSnapshot) {
				t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	savedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		status        model.SessionStatus
		elapsed       time.Duration
		expectExpired bool
		expectPaper   int
		expectSection int
		expectQuest   int
	}{
		{name: "no gap", status: model.SessionStatusRunning, elapsed: 0, expectPaper: 300, expectSection: 120, expectQuest: -1},
		{name: "short gap", status: model.SessionStatusRunning, elapsed: 100 * time.Second, expectPaper: 200, expectSection: 20, expectQuest: -1},
		{name: "section clamped to one", status: model.SessionStatusRunning, elapsed: 150 * time.Second, expectPaper: 150, expectSection: 1, expectQuest: -1},
		{name: "exactly used up", status: model.SessionStatusRunning, elapsed: 300 * time.Second, expectExpired: true, expectPaper: 0, expectSection: 120, expectQuest: -1},
		{name: "saved 400s ago with 300s left", status: model.SessionStatusRunning, elapsed: 400 * time.Second, expectExpired: true, expectPaper: 0, expectSection: 120, expectQuest: -1},
		{name: "paused is not charged", status: model.SessionStatusPaused, elapsed: 400 * time.Second, expectPaper: 300, expectSection: 120, expectQuest: -1},
		{name: "clock skew", status: model.SessionStatusRunning, elapsed: -time.Minute, expectPaper: 300, expectSection: 120, expectQuest: -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := sampleSnapshot(tc.status, savedAt)
			st, expired := Reconcile(snap, savedAt.Add(tc.elapsed))
			if expired != tc.expectExpired {
				t.Fatalf("expected expired=%v, got %v", tc.expectExpired, expired)
			}
			if st.PaperRemaining != tc.expectPaper || st.SectionRemaining != tc.expectSection || st.QuestionRemaining != tc.expectQuest {
				t.Fatalf("expected %d/%d/%d, got %d/%d/%d",
					tc.expectPaper, tc.expectSection, tc.expectQuest,
					st.PaperRemaining, st.SectionRemaining, st.QuestionRemaining)
			}
			if snap.State.PaperRemaining != 300 {
				t.Fatal("input snapshot was mutated")
			}
		})
	}
}
