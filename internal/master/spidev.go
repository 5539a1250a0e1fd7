package master

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SpidevConfig selects the SPI bus and the chip select ports on it.
type SpidevConfig struct {
	// Ports maps a chip select to a periph port name, e.g. "/dev/spidev0.1"
	// or "SPI0.1".
	Ports   map[uint8]string
	SpeedHz int64
	Mode    int
}

// Spidev drives the Linux SPI controller through periph.io. Each chip
// select is its own spidev port.
type Spidev struct {
	cfg    SpidevConfig
	logger *zap.Logger

	mu    sync.Mutex
	ports map[uint8]spi.PortCloser
	conns map[uint8]spi.Conn
}

func NewSpidev(cfg SpidevConfig, logger *zap.Logger) *Spidev {
	if cfg.SpeedHz == 0 {
		cfg.SpeedHz = 1_000_000
	}
	return &Spidev{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Spidev) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	ports := make(map[uint8]spi.PortCloser, len(s.cfg.Ports))
	conns := make(map[uint8]spi.Conn, len(s.cfg.Ports))
	for cs, name := range s.cfg.Ports {
		p, err := spireg.Open(name)
		if err != nil {
			closeAll(ports)
			return fmt.Errorf("open %s: %w", name, err)
		}
		ports[cs] = p

		c, err := p.Connect(physic.Frequency(s.cfg.SpeedHz)*physic.Hertz, spi.Mode(s.cfg.Mode), 8)
		if err != nil {
			closeAll(ports)
			return fmt.Errorf("connect %s: %w", name, err)
		}
		conns[cs] = c

		s.logger.Info("SPI port opened",
			zap.String("port", name),
			zap.Uint8("chip_select", cs),
			zap.Int64("speed_hz", s.cfg.SpeedHz),
			zap.Int("mode", s.cfg.Mode))
	}

	s.ports, s.conns = ports, conns
	return nil
}

func closeAll(ports map[uint8]spi.PortCloser) {
	for _, p := range ports {
		_ = p.Close()
	}
}

func (s *Spidev) Transfer(cs uint8, tx []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns == nil {
		return nil, ErrNotInitialized
	}
	c, ok := s.conns[cs]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChipSelect, cs)
	}

	rx := make([]byte, len(tx))
	if err := c.Tx(tx, rx); err != nil {
		return nil, fmt.Errorf("spi transfer: %w", err)
	}
	return rx, nil
}

func (s *Spidev) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, p := range s.ports {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.ports, s.conns = nil, nil
	return firstErr
}
