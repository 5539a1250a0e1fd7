package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenSpiCore/internal/bench"
	"github.com/KevinKickass/OpenSpiCore/internal/charge"
	"github.com/KevinKickass/OpenSpiCore/internal/config"
	"github.com/KevinKickass/OpenSpiCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State       string `json:"state"`
	Bench       string `json:"bench,omitempty"`
	Transport   string `json:"transport"`
	BusRunning  bool   `json:"bus_running"`
	DeviceCount int    `json:"device_count"`
	Recording   bool   `json:"recording"`
}

type LifecycleManager interface {
	Config() *config.Config
	// Storage is nil when the database is disabled.
	Storage() *storage.PostgresClient
	BenchManager() *bench.Manager
	ChargeRegistry() *charge.Registry
	GetCurrentStatus() SystemStatus
	StartBus() error
	StopBus()
	Shutdown(ctx context.Context) error
}
