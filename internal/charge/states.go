package charge

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
)

type State string

const (
	StateIdle        State = "idle"
	StateConfiguring State = "configuring"
	StateCharging    State = "charging"
	StateFinished    State = "finished"
	StateAborted     State = "aborted"
	StateError       State = "error"
)

// active reports whether a run owns the supply.
func (s State) active() bool {
	return s == StateConfiguring || s == StateCharging
}

var (
	ErrParams    = errors.New("invalid charge parameters")
	ErrBusy      = errors.New("charge already running")
	ErrNotActive = errors.New("no charge running")
)

const (
	defaultPollInterval = time.Second
	defaultStepTimeout  = 5 * time.Second
)

// Params of a constant-current / constant-voltage charge. The supply tracks
// TargetVoltage with the current limited to MaxCurrent; the charge ends once
// the current falls to ThresholdCurrent.
type Params struct {
	TargetVoltage    float64       `json:"target_voltage"`
	MaxCurrent       float64       `json:"max_current"`
	ThresholdCurrent float64       `json:"threshold_current"`
	PollInterval     time.Duration `json:"poll_interval_ns,omitempty"`
	// StepTimeout bounds every single supply request.
	StepTimeout time.Duration `json:"step_timeout_ns,omitempty"`
}

func (p *Params) applyDefaults() {
	if p.PollInterval == 0 {
		p.PollInterval = defaultPollInterval
	}
	if p.StepTimeout == 0 {
		p.StepTimeout = defaultStepTimeout
	}
}

func (p Params) Validate() error {
	if p.TargetVoltage <= pss.MinVoltage || p.TargetVoltage > pss.MaxVoltage {
		return fmt.Errorf("%w: target_voltage %v outside (%v, %v] V", ErrParams, p.TargetVoltage, pss.MinVoltage, pss.MaxVoltage)
	}
	if p.MaxCurrent <= 0 || p.MaxCurrent > pss.MaxCurrent {
		return fmt.Errorf("%w: max_current %v outside (0, %v] A", ErrParams, p.MaxCurrent, pss.MaxCurrent)
	}
	if p.ThresholdCurrent < 0 || p.ThresholdCurrent >= p.MaxCurrent {
		return fmt.Errorf("%w: threshold_current %v must be in [0, max_current)", ErrParams, p.ThresholdCurrent)
	}
	if p.PollInterval < 0 || p.StepTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrParams)
	}
	return nil
}

type Status struct {
	Device          string      `json:"device"`
	RunID           string      `json:"run_id,omitempty"`
	State           State       `json:"state"`
	Params          *Params     `json:"params,omitempty"`
	LastOutput      *pss.Output `json:"last_output,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	LastStateChange time.Time   `json:"last_state_change"`
}
