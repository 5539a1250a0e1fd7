// Package charge runs constant-current / constant-voltage charges on a
// power supply board.
package charge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
)

// Supply is the part of a PSS a charge needs.
type Supply interface {
	WriteConfig(cfg pss.Config) (*async.Return[struct{}], error)
	OutputConnect() (*async.Return[struct{}], error)
	OutputDisconnect() (*async.Return[struct{}], error)
	ReadOutput() *async.Return[pss.Output]
}

// Notifier receives state changes, usually the websocket hub.
type Notifier interface {
	Broadcast(msg websocket.Message)
}

type Controller struct {
	device string
	supply Supply
	hub    Notifier
	logger *zap.Logger

	mu              sync.RWMutex
	currentState    State
	runID           uuid.UUID
	params          *Params
	lastOutput      *pss.Output
	errorMessage    string
	startedAt       *time.Time
	finishedAt      *time.Time
	lastStateChange time.Time
	cancel          context.CancelFunc
	done            chan struct{}
}

// NewController creates an idle controller. hub may be nil.
func NewController(device string, supply Supply, hub Notifier, logger *zap.Logger) *Controller {
	done := make(chan struct{})
	close(done)
	return &Controller{
		device:          device,
		supply:          supply,
		hub:             hub,
		logger:          logger.With(zap.String("device", device)),
		currentState:    StateIdle,
		lastStateChange: time.Now(),
		done:            done,
	}
}

// Start validates params and begins a charge in the background. The supply
// must have been initialised.
func (c *Controller) Start(params Params) (uuid.UUID, error) {
	if err := params.Validate(); err != nil {
		return uuid.Nil, err
	}
	params.applyDefaults()

	c.mu.Lock()
	if c.currentState.active() {
		state := c.currentState
		c.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w (current: %s)", ErrBusy, state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	c.runID = uuid.New()
	c.params = &params
	c.lastOutput = nil
	c.startedAt = &now
	c.finishedAt = nil
	c.cancel = cancel
	c.done = make(chan struct{})
	previousState := c.currentState
	c.currentState = StateConfiguring
	c.errorMessage = ""
	c.lastStateChange = now
	runID, done := c.runID, c.done
	c.mu.Unlock()

	c.notify(runID, StateConfiguring, previousState, "")

	c.logger.Info("Charge started",
		zap.String("run_id", runID.String()),
		zap.Float64("target_voltage", params.TargetVoltage),
		zap.Float64("max_current", params.MaxCurrent),
		zap.Float64("threshold_current", params.ThresholdCurrent))

	go func() {
		defer close(done)
		defer cancel()
		c.run(ctx, params)
	}()

	return runID, nil
}

// Abort stops a running charge and waits until the output is disconnected.
func (c *Controller) Abort() error {
	c.mu.RLock()
	active := c.currentState.active()
	cancel, done := c.cancel, c.done
	c.mu.RUnlock()

	if !active {
		return ErrNotActive
	}
	cancel()
	<-done
	return nil
}

// Done is closed when the current run has ended.
func (c *Controller) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

func (c *Controller) run(ctx context.Context, p Params) {
	cfg := pss.Config{
		TrackingMode:      pss.TrackVoltage,
		TargetVoltage:     pss.Float(p.TargetVoltage),
		LowerCurrentLimit: pss.Float(0),
		UpperCurrentLimit: pss.Float(p.MaxCurrent),
	}

	ret, err := c.supply.WriteConfig(cfg)
	if err == nil {
		_, err = await(ctx, ret, p.StepTimeout)
	}
	if err != nil {
		c.fail(ctx, "write config", err, false)
		return
	}

	ret, err = c.supply.OutputConnect()
	if err == nil {
		_, err = await(ctx, ret, p.StepTimeout)
	}
	if err != nil {
		c.fail(ctx, "connect output", err, true)
		return
	}

	c.setState(StateCharging, "")

	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		out, err := await(ctx, c.supply.ReadOutput(), p.StepTimeout)
		if err != nil {
			c.fail(ctx, "read output", err, true)
			return
		}

		c.mu.Lock()
		c.lastOutput = &out
		c.mu.Unlock()

		if c.hub != nil {
			c.hub.Broadcast(websocket.NewMeasurementMessage(c.device, out.Voltage, out.Current))
		}

		if out.Current <= p.ThresholdCurrent {
			c.logger.Info("Charge current below threshold",
				zap.Float64("voltage", out.Voltage),
				zap.Float64("current", out.Current))
			break
		}

		select {
		case <-ctx.Done():
			c.fail(ctx, "poll", ctx.Err(), true)
			return
		case <-ticker.C:
		}
	}

	if err := c.disconnect(p.StepTimeout); err != nil {
		c.setState(StateError, fmt.Sprintf("disconnect output: %v", err))
		return
	}
	c.setState(StateFinished, "")
}

// fail ends a run. Cancellation by Abort ends in StateAborted, anything else
// in StateError. The output is disconnected when it may be connected.
func (c *Controller) fail(ctx context.Context, step string, err error, connected bool) {
	aborted := ctx.Err() != nil && errors.Is(err, context.Canceled)

	if connected {
		c.mu.RLock()
		timeout := c.params.StepTimeout
		c.mu.RUnlock()

		if derr := c.disconnect(timeout); derr != nil {
			err = errors.Join(err, fmt.Errorf("disconnect output: %w", derr))
			aborted = false
		}
	}

	if aborted {
		c.setState(StateAborted, "")
		return
	}

	c.logger.Error("Charge failed", zap.String("step", step), zap.Error(err))
	c.setState(StateError, fmt.Sprintf("%s: %v", step, err))
}

// disconnect runs outside the run context so that it also works after Abort.
func (c *Controller) disconnect(timeout time.Duration) error {
	ret, err := c.supply.OutputDisconnect()
	if err != nil {
		return err
	}
	_, err = await(context.Background(), ret, timeout)
	return err
}

func await[T any](ctx context.Context, r *async.Return[T], timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.WaitContext(ctx)
}

func (c *Controller) setState(state State, errorMsg string) {
	c.mu.Lock()
	previousState := c.currentState
	c.currentState = state
	c.errorMessage = errorMsg
	c.lastStateChange = time.Now()
	if !state.active() && state != StateIdle {
		now := c.lastStateChange
		c.finishedAt = &now
	}
	runID := c.runID
	c.mu.Unlock()

	c.notify(runID, state, previousState, errorMsg)
}

func (c *Controller) notify(runID uuid.UUID, state, previousState State, errorMsg string) {
	c.logger.Info("Charge state changed",
		zap.String("state", string(state)),
		zap.String("previous_state", string(previousState)),
		zap.String("error", errorMsg))

	// Broadcast state change via WebSocket
	if c.hub != nil {
		c.hub.Broadcast(websocket.NewChargeStateMessage(
			c.device,
			runID.String(),
			string(state),
			string(previousState),
			errorMsg,
		))
	}
}

func (c *Controller) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		Device:          c.device,
		State:           c.currentState,
		Params:          c.params,
		LastOutput:      c.lastOutput,
		ErrorMessage:    c.errorMessage,
		StartedAt:       c.startedAt,
		FinishedAt:      c.finishedAt,
		LastStateChange: c.lastStateChange,
	}
	if c.runID != uuid.Nil {
		s.RunID = c.runID.String()
	}
	return s
}

// Registry holds one controller per power supply, created on first use.
type Registry struct {
	lookup func(name string) (Supply, error)
	hub    Notifier
	logger *zap.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry(lookup func(name string) (Supply, error), hub Notifier, logger *zap.Logger) *Registry {
	return &Registry{
		lookup:      lookup,
		hub:         hub,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
}

func (r *Registry) Get(name string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.controllers[name]; ok {
		return c, nil
	}
	supply, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	c := NewController(name, supply, r.hub, r.logger)
	r.controllers[name] = c
	return c, nil
}

// AbortAll aborts every running charge, e.g. on shutdown.
func (r *Registry) AbortAll() {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	for _, c := range controllers {
		if err := c.Abort(); err == nil {
			r.logger.Info("Charge aborted on shutdown", zap.String("device", c.device))
		}
	}
}
