// internal/poller/types.go
package poller

import (
	"errors"
	"time"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
)

// State is the runner's position in one poll cycle.
type State uint32

const (
	StateIdle State = iota
	StatePolling
	StateMerging
	StatePartialFailure

	// StateOK is the outcome of a clean cycle; the runner never rests in it.
	StateOK
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateMerging:
		return "merging"
	case StatePartialFailure:
		return "partial_failure"
	case StateOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Range is one contiguous read covering one or more definitions.
type Range struct {
	SlaveID uint8
	Address uint16
	Count   uint16
	Defs    []catalog.Definition

	// split is set once the device rejects the batched read;
	// the range is then read one definition at a time.
	split bool
}

// PollResult is produced by one poll cycle.
type PollResult struct {
	DeviceID string
	At       time.Time
	Duration time.Duration

	// Values is the merged name -> engineering value mapping.
	Values map[string]float64

	// State is StateOK for a clean cycle, StatePartialFailure otherwise.
	State State

	RegisterErr error
	MeterErr    error
}

// Partial reports whether any read in the cycle failed.
func (r PollResult) Partial() bool {
	return r.RegisterErr != nil || r.MeterErr != nil
}

// Committed reports whether the cycle produced anything worth publishing.
func (r PollResult) Committed() bool {
	return len(r.Values) > 0
}

// Err joins the branch errors; nil means a clean cycle.
func (r PollResult) Err() error {
	return errors.Join(r.RegisterErr, r.MeterErr)
}
