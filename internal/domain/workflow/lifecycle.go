package workflow

import (
	"errors"
	"fmt"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

var (
	// ErrInvalidTransition is returned when a trigger is not permitted from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for an unknown state
	ErrInvalidState = errors.New("invalid state")
)

// State is a job lifecycle state, stored as the job status column
type State string

const (
	StateQueued     State = entity.JobStatusQueued
	StateProcessing State = entity.JobStatusProcessing
	StateCompleted  State = entity.JobStatusCompleted
	StateFailed     State = entity.JobStatusFailed
	StateCanceled   State = entity.JobStatusCanceled
)

// lifecycleOrder lists every state in the order a job normally visits them
var lifecycleOrder = []State{StateQueued, StateProcessing, StateCompleted, StateFailed, StateCanceled}

// Trigger moves a job between states
type Trigger string

const (
	TriggerStart    Trigger = "START"
	TriggerComplete Trigger = "COMPLETE"
	TriggerFail     Trigger = "FAIL"
	TriggerCancel   Trigger = "CANCEL"
)

// transitions is the whole job lifecycle. Terminal states have no entry.
var transitions = map[State]map[Trigger]State{
	StateQueued: {
		TriggerStart:  StateProcessing,
		TriggerCancel: StateCanceled,
		TriggerFail:   StateFailed,
	},
	StateProcessing: {
		TriggerComplete: StateCompleted,
		TriggerFail:     StateFailed,
		TriggerCancel:   StateCanceled,
	},
}

func (s State) String() string   { return string(s) }
func (t Trigger) String() string { return string(t) }

// IsValid returns true if the state is a known job state
func (s State) IsValid() bool {
	for _, known := range lifecycleOrder {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true for valid states with no outgoing transitions
func (s State) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// Next resolves the state trigger leads to from current
func Next(current State, trigger Trigger) (State, error) {
	if !current.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, current)
	}
	to, ok := transitions[current][trigger]
	if !ok {
		return "", fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, current)
	}
	return to, nil
}

// Permitted lists the triggers allowed from s in a stable order
func Permitted(s State) []Trigger {
	var out []Trigger
	for _, t := range []Trigger{TriggerStart, TriggerComplete, TriggerFail, TriggerCancel} {
		if _, ok := transitions[s][t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Sources lists the states from which trigger is permitted, in lifecycle order.
// Repositories use it as the guard of a conditional status update.
func Sources(trigger Trigger) []State {
	var out []State
	for _, s := range lifecycleOrder {
		if _, ok := transitions[s][trigger]; ok {
			out = append(out, s)
		}
	}
	return out
}
