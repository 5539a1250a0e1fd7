package system

import (
	"fmt"
	"slices"
)

// SystemState is the daemon state reported by /system/status. IDLE and
// RUNNING mirror the bus scheduler.
type SystemState string

const (
	StateStarting SystemState = "STARTING"
	StateIdle     SystemState = "IDLE"
	StateRunning  SystemState = "RUNNING"
	StateStopping SystemState = "STOPPING"
	StateStopped  SystemState = "STOPPED"
	StateError    SystemState = "ERROR"
)

// A stopped daemon is not restarted; the process exits.
var transitions = map[SystemState][]SystemState{
	StateStarting: {StateIdle, StateRunning, StateStopping, StateError},
	StateIdle:     {StateRunning, StateStopping, StateError},
	StateRunning:  {StateIdle, StateStopping, StateError},
	StateStopping: {StateStopped, StateError},
	StateStopped:  nil,
	StateError:    {StateIdle, StateRunning, StateStopping, StateStopped},
}

func ValidateTransition(from, to SystemState) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown state %q", from)
	}
	if !slices.Contains(next, to) {
		return fmt.Errorf("invalid state transition: %s -> %s", from, to)
	}
	return nil
}
