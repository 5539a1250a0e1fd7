package system

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/config"
	"github.com/KevinKickass/OpenSpiCore/internal/ipc"
	"github.com/KevinKickass/OpenSpiCore/internal/master"
	"github.com/KevinKickass/OpenSpiCore/internal/spi"
)

// NewTransport builds the transport the scheduler talks to. For ipc the bus
// server process is spawned here and lives until the transport is closed.
func NewTransport(ctx context.Context, cfg config.BusConfig, logger *zap.Logger) (spi.Transport, error) {
	switch cfg.Transport {
	case config.TransportIPC:
		proc, err := ipc.Spawn(ctx, cfg.IPCCommand, cfg.IPCArgs, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to spawn bus server: %w", err)
		}
		return proc, nil
	case config.TransportGRPC:
		return ipc.DialBus(cfg.GRPCAddress, cfg.TransferTimeout), nil
	default:
		return NewMaster(cfg.Transport, cfg, logger)
	}
}

// NewMaster builds a bus master that drives hardware, or a virtual one.
func NewMaster(kind string, cfg config.BusConfig, logger *zap.Logger) (spi.Transport, error) {
	switch kind {
	case config.TransportVirtual:
		return master.NewVirtual(nil), nil
	case config.TransportArduino:
		return master.NewArduino(master.ArduinoConfig{
			Port:        cfg.SerialPort,
			Baud:        cfg.Baud,
			ReadTimeout: cfg.ReadTimeout,
		}, logger), nil
	case config.TransportSpidev:
		return master.NewSpidev(master.SpidevConfig{
			Ports:   cfg.SpidevPortMap(),
			SpeedHz: cfg.SpeedHz,
			Mode:    cfg.SPIMode,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%q is not a bus master", kind)
	}
}
