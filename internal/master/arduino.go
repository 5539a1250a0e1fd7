package master

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	ArduinoBaud     = 115200
	arduinoBootWait = 2 * time.Second
)

// ArduinoConfig describes the serial bridge.
type ArduinoConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
	BootWait    time.Duration
}

// Arduino talks to a serial-to-SPI bridge sketch: each transfer is sent as a
// hex line and answered with a hex line of the same length. The sketch runs
// SPI mode 0 at about 1 MHz on chip select 0 only.
type Arduino struct {
	cfg    ArduinoConfig
	logger *zap.Logger
	open   func(ArduinoConfig) (io.ReadWriteCloser, error)

	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

func NewArduino(cfg ArduinoConfig, logger *zap.Logger) *Arduino {
	if cfg.Baud == 0 {
		cfg.Baud = ArduinoBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.BootWait == 0 {
		cfg.BootWait = arduinoBootWait
	}
	return &Arduino{
		cfg:    cfg,
		logger: logger,
		open:   openSerial,
	}
}

func openSerial(cfg ArduinoConfig) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return port, nil
}

// Init öffnet den Port und wartet auf den Bootloader
func (a *Arduino) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port != nil {
		return nil
	}

	port, err := a.open(a.cfg)
	if err != nil {
		return err
	}
	a.port = port
	a.reader = bufio.NewReader(port)

	// opening the port resets the board
	time.Sleep(a.cfg.BootWait)

	a.logger.Info("Arduino SPI bridge ready",
		zap.String("port", a.cfg.Port),
		zap.Int("baud", a.cfg.Baud))
	return nil
}

func (a *Arduino) Transfer(cs uint8, tx []byte) ([]byte, error) {
	if cs != 0 {
		return nil, fmt.Errorf("%w: %d", ErrChipSelect, cs)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return nil, ErrNotInitialized
	}

	if _, err := io.WriteString(a.port, hex.EncodeToString(tx)+"\n"); err != nil {
		return nil, fmt.Errorf("serial write: %w", err)
	}

	line, err := a.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("serial read: %w", err)
	}
	rx, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("invalid bridge response %q: %w", line, err)
	}
	return rx, nil
}

func (a *Arduino) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	a.reader = nil
	return err
}
