// Package persistence stores session snapshots for resume-after-reload and final
// submission. The session engine only sees the Adapter; the storage medium is pluggable.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/stemsi/exstem-session/internal/model"
)

// PersistenceError wraps a storage failure. It never interrupts the exam flow: the
// adapter logs it and reports it on its Errors channel.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrCorruptSnapshot is returned by Decode for data that fails schema validation.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

var snapshotValidate = govalidator.New(govalidator.WithRequiredStructEnabled())

// Encode serializes a snapshot as versioned JSON.
func Encode(snap model.Snapshot) ([]byte, error) {
	snap.Version = model.SnapshotVersion
	return json.Marshal(snap)
}

// Decode parses and validates a snapshot.
func Decode(data []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Version != model.SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}
	if err := snapshotValidate.Struct(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.State.Answers == nil {
		snap.State.Answers = make(map[string]model.Answer)
	}
	return &snap, nil
}

// Reconcile charges the wall-clock time elapsed between the save and now to a snapshot
// of a running session. It reports expired when the paper time is used up, in which case
// the caller must auto-submit instead of resuming.
//
// Bounded section and question countdowns are charged too but kept at a minimum of one
// second, so their expiry fires through the normal tick path right after resuming.
// Snapshots that are not RUNNING are returned unchanged.
func Reconcile(snap model.Snapshot, now time.Time) (model.SessionState, bool) {
	st := snap.State.Clone()
	if snap.Status != model.SessionStatusRunning {
		return st, false
	}

	elapsed := int(now.Sub(snap.SavedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	if st.PaperRemaining-elapsed <= 0 {
		st.PaperRemaining = 0
		return st, true
	}
	st.PaperRemaining -= elapsed
	st.SectionRemaining = charge(st.SectionRemaining, elapsed)
	st.QuestionRemaining = charge(st.QuestionRemaining, elapsed)
	return st, false
}

func charge(remaining, elapsed int) int {
	if remaining <= 0 {
		return remaining
	}
	if remaining-elapsed < 1 {
		return 1
	}
	return remaining - elapsed
}
