package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
)

// MeasurementStore persists samples. *PostgresClient implements it.
type MeasurementStore interface {
	InsertMeasurements(ctx context.Context, ms []Measurement) error
}

// OutputSource lists the power supplies and samples one of them.
type OutputSource interface {
	PSSNames() []string
	ReadOutput(name string) (*async.Return[pss.Output], error)
}

// Notifier receives live samples, usually the websocket hub.
type Notifier interface {
	Broadcast(msg websocket.Message)
}

// Recorder samples every power supply at a fixed interval, stores the
// samples and broadcasts them. store and hub may each be nil.
type Recorder struct {
	source   OutputSource
	store    MeasurementStore
	hub      Notifier
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRecorder(source OutputSource, store MeasurementStore, hub Notifier, interval time.Duration, logger *zap.Logger) *Recorder {
	return &Recorder{
		source:   source,
		store:    store,
		hub:      hub,
		interval: interval,
		logger:   logger,
	}
}

func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})

	r.wg.Add(1)
	go r.loop(r.stopChan)

	r.logger.Info("Recorder started", zap.Duration("interval", r.interval))
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopChan)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Recorder stopped")
}

func (r *Recorder) loop(stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			r.Sample(ctx)
			cancel()
		}
	}
}

// Sample reads every power supply once; the reads run concurrently on the
// bus. Failed reads are logged and skipped.
func (r *Recorder) Sample(ctx context.Context) []Measurement {
	type pending struct {
		name string
		ret  *async.Return[pss.Output]
	}

	var reads []pending
	for _, name := range r.source.PSSNames() {
		ret, err := r.source.ReadOutput(name)
		if err != nil {
			r.logger.Warn("Sample skipped", zap.String("device", name), zap.Error(err))
			continue
		}
		reads = append(reads, pending{name: name, ret: ret})
	}

	now := time.Now()
	ms := make([]Measurement, 0, len(reads))
	for _, p := range reads {
		out, err := p.ret.WaitContext(ctx)
		if err != nil {
			r.logger.Warn("Sample failed", zap.String("device", p.name), zap.Error(err))
			if r.hub != nil {
				r.hub.Broadcast(websocket.NewDeviceErrorMessage(p.name, "read_output", err))
			}
			continue
		}

		ms = append(ms, Measurement{
			ID:         uuid.New(),
			Device:     p.name,
			Voltage:    out.Voltage,
			Current:    out.Current,
			MeasuredAt: now,
		})
		if r.hub != nil {
			r.hub.Broadcast(websocket.NewMeasurementMessage(p.name, out.Voltage, out.Current))
		}
	}

	if r.store != nil && len(ms) > 0 {
		if err := r.store.InsertMeasurements(ctx, ms); err != nil {
			r.logger.Error("Failed to store measurements", zap.Error(err))
		}
	}
	return ms
}
