// Package system wires the bench, the bus transport and the API servers
// together and owns their lifecycle.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/api/rest"
	"github.com/KevinKickass/OpenSpiCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSpiCore/internal/bench"
	"github.com/KevinKickass/OpenSpiCore/internal/charge"
	"github.com/KevinKickass/OpenSpiCore/internal/config"
	"github.com/KevinKickass/OpenSpiCore/internal/interfaces"
	"github.com/KevinKickass/OpenSpiCore/internal/spi"
	"github.com/KevinKickass/OpenSpiCore/internal/storage"
)

type LifecycleManager struct {
	config    *config.Config
	storage   *storage.PostgresClient
	transport spi.Transport
	bench     *bench.Manager
	charges   *charge.Registry
	recorder  *storage.Recorder
	hub       *websocket.Hub
	logger    *zap.Logger

	restServer *rest.Server
	hubCancel  context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager builds every component without starting any of them.
// db may be nil when the database is disabled.
func NewLifecycleManager(ctx context.Context, db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	transport, err := NewTransport(ctx, cfg.Bus, logger)
	if err != nil {
		return nil, err
	}

	bm, err := bench.NewManager(cfg.Bench.SearchPaths, transport, logger)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to create bench manager: %w", err)
	}

	hub := websocket.NewHub(logger)

	charges := charge.NewRegistry(func(name string) (charge.Supply, error) {
		p, err := bm.PSS(name)
		if err != nil {
			return nil, err
		}
		return p, nil
	}, hub, logger)

	lm := &LifecycleManager{
		config:       cfg,
		storage:      db,
		transport:    transport,
		bench:        bm,
		charges:      charges,
		hub:          hub,
		logger:       logger,
		currentState: StateStarting,
		shutdownChan: make(chan struct{}),
	}

	if cfg.Recorder.Enabled {
		var store storage.MeasurementStore
		if db != nil {
			store = db
		}
		lm.recorder = storage.NewRecorder(bm, store, hub, cfg.Recorder.SampleInterval, logger)
	}

	return lm, nil
}

func (lm *LifecycleManager) Config() *config.Config           { return lm.config }
func (lm *LifecycleManager) Storage() *storage.PostgresClient { return lm.storage }
func (lm *LifecycleManager) BenchManager() *bench.Manager     { return lm.bench }
func (lm *LifecycleManager) ChargeRegistry() *charge.Registry { return lm.charges }
func (lm *LifecycleManager) Hub() *websocket.Hub              { return lm.hub }
func (lm *LifecycleManager) Done() <-chan struct{}            { return lm.shutdownChan }

// Start loads the configured bench profile and starts the API servers. The
// bus is started too when bench.auto_start is set.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenSpiCore",
		zap.String("transport", lm.config.Bus.Transport))

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.hub.Run(hubCtx)

	if lm.config.Bench.Profile != "" {
		if err := lm.bench.LoadProfile(lm.config.Bench.Profile); err != nil {
			lm.setError(err)
			return err
		}
		if lm.config.Bench.AutoStart {
			if err := lm.StartBus(); err != nil {
				lm.setError(err)
				return err
			}
		}
	} else {
		lm.logger.Warn("No bench profile configured, bus stays idle")
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(lm.busState())

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("bus_running", lm.bench.IsRunning()))

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.hub)
	return lm.restServer.Start()
}

// StartBus starts the scheduler and, when enabled, the recorder.
func (lm *LifecycleManager) StartBus() error {
	if err := lm.bench.Start(); err != nil {
		return err
	}
	if lm.recorder != nil {
		lm.recorder.Start()
	}
	lm.followBus()
	return nil
}

// StopBus aborts running charges first so that their outputs are
// disconnected while the bus still runs.
func (lm *LifecycleManager) StopBus() {
	lm.charges.AbortAll()
	if lm.recorder != nil {
		lm.recorder.Stop()
	}
	lm.bench.Stop()
	lm.followBus()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	done := make(chan struct{})
	go func() {
		defer close(done)
		lm.StopBus()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		errs = append(errs, fmt.Errorf("bus stop: %w", ctx.Err()))
	}

	if err := lm.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transport close failed: %w", err))
	}

	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
		cancel()
	}

	if lm.hubCancel != nil {
		lm.hubCancel()
		select {
		case <-lm.hub.Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("hub stop: %w", ctx.Err()))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) busState() SystemState {
	if lm.bench.IsRunning() {
		return StateRunning
	}
	return StateIdle
}

// followBus moves between IDLE and RUNNING after the scheduler started or
// stopped. Starting, stopping and stopped daemons keep their state.
func (lm *LifecycleManager) followBus() {
	lm.stateMu.RLock()
	current := lm.currentState
	lm.stateMu.RUnlock()

	switch current {
	case StateIdle, StateRunning, StateError:
		lm.setState(lm.busState())
	default:
		lm.broadcastStatus()
	}
}

// setState rejects transitions ValidateTransition does not allow.
func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	from := lm.currentState
	if from != state {
		if err := ValidateTransition(from, state); err != nil {
			lm.stateMu.Unlock()
			lm.logger.Warn("State change rejected", zap.Error(err))
			return
		}
		lm.currentState = state
	}
	lm.stateMu.Unlock()

	if from != state {
		lm.logger.Info("System state changed",
			zap.String("from", string(from)),
			zap.String("to", string(state)))
	}
	lm.broadcastStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.GetCurrentStatus()
	lm.hub.Broadcast(websocket.NewBenchStatusMessage(status.Bench, status.BusRunning))
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:       string(state),
		Transport:   lm.config.Bus.Transport,
		BusRunning:  lm.bench.IsRunning(),
		DeviceCount: len(lm.bench.ListDevices()),
		Recording:   lm.recorder != nil && lm.bench.IsRunning(),
	}
	if p := lm.bench.Profile(); p != nil {
		status.Bench = p.Bench.Name
	}
	return status
}
