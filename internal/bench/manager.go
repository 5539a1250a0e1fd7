// Package bench builds the drivers of a bench profile and runs them on one
// SPI bus.
package bench

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ad5672"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
	"github.com/KevinKickass/OpenSpiCore/internal/spi"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceType     = errors.New("device has a different type")
	ErrNoProfile      = errors.New("no bench profile loaded")
)

type Manager struct {
	loader    *ProfileLoader
	composer  *Composer
	transport spi.Transport

	mu      sync.RWMutex
	profile *types.BenchProfile
	devices map[uuid.UUID]*Device
	order   []*Device
	client  *spi.Client
	logger  *zap.Logger
}

func NewManager(searchPaths []string, transport spi.Transport, logger *zap.Logger) (*Manager, error) {
	loader, err := NewProfileLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	return &Manager{
		loader:    loader,
		composer:  NewComposer(logger),
		transport: transport,
		devices:   make(map[uuid.UUID]*Device),
		logger:    logger,
	}, nil
}

// LoadProfile lädt ein Profil aus den Suchpfaden und baut den Bus auf
func (m *Manager) LoadProfile(profilePath string) error {
	profile, err := m.loader.Load(profilePath)
	if err != nil {
		return fmt.Errorf("failed to load profile %s: %w", profilePath, err)
	}
	return m.Build(profile)
}

// Build replaces the current bench. The scheduler must be stopped.
func (m *Manager) Build(profile *types.BenchProfile) error {
	if err := m.loader.validator.ValidateProfileDefinition(profile); err != nil {
		return err
	}

	devices := make(map[uuid.UUID]*Device, len(profile.Channels))
	order := make([]*Device, 0, len(profile.Channels))
	channels := make([]spi.Channel, 0, len(profile.Channels))

	for _, def := range profile.Channels {
		dev, ch, err := m.composer.ComposeChannel(def)
		if err != nil {
			return err
		}
		devices[dev.ID] = dev
		order = append(order, dev)
		channels = append(channels, ch)
	}

	client, err := spi.NewClient(m.transport, channels, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create bus client: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.client.IsRunning() {
		return spi.ErrRunning
	}
	m.profile = profile
	m.devices = devices
	m.order = order
	m.client = client

	m.logger.Info("Bench loaded",
		zap.String("bench", profile.Bench.Name),
		zap.Int("channels", len(channels)))

	return nil
}

// Start initialises the transport and starts all channels.
func (m *Manager) Start() error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client == nil {
		return ErrNoProfile
	}
	if err := m.transport.Init(); err != nil {
		return fmt.Errorf("failed to initialize bus master: %w", err)
	}
	return client.Start()
}

func (m *Manager) Stop() {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client != nil {
		client.Stop()
	}
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil && m.client.IsRunning()
}

func (m *Manager) Profile() *types.BenchProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// GetDevice returns device by ID
func (m *Manager) GetDevice(id uuid.UUID) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dev, ok := m.devices[id]
	return dev, ok
}

// GetDeviceByName returns device by name
func (m *Manager) GetDeviceByName(name string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, dev := range m.order {
		if dev.Name == name {
			return dev, true
		}
	}
	return nil, false
}

// Lookup accepts a device name or ID.
func (m *Manager) Lookup(ref string) (*Device, error) {
	if dev, ok := m.GetDeviceByName(ref); ok {
		return dev, nil
	}
	if id, err := uuid.Parse(ref); err == nil {
		if dev, ok := m.GetDevice(id); ok {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, ref)
}

// ListDevices returns all devices in profile order
func (m *Manager) ListDevices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Device, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) PSS(ref string) (*pss.PSS, error) {
	dev, err := m.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if dev.PSS == nil {
		return nil, fmt.Errorf("%w: %s is %s, not pss", ErrDeviceType, dev.Name, dev.Type)
	}
	return dev.PSS, nil
}

func (m *Manager) ADC(ref string) (*ads866x.ADC, error) {
	dev, err := m.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if dev.ADC == nil {
		return nil, fmt.Errorf("%w: %s is %s, not ads866x", ErrDeviceType, dev.Name, dev.Type)
	}
	return dev.ADC, nil
}

func (m *Manager) DAC(ref string) (*ad5672.DAC, error) {
	dev, err := m.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if dev.DAC == nil {
		return nil, fmt.Errorf("%w: %s is %s, not ad5672", ErrDeviceType, dev.Name, dev.Type)
	}
	return dev.DAC, nil
}

// ReadOutput samples the power supply ref.
func (m *Manager) ReadOutput(ref string) (*async.Return[pss.Output], error) {
	p, err := m.PSS(ref)
	if err != nil {
		return nil, err
	}
	return p.ReadOutput(), nil
}

// PSSNames lists the power supply channels in profile order.
func (m *Manager) PSSNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, dev := range m.order {
		if dev.PSS != nil {
			names = append(names, dev.Name)
		}
	}
	return names
}
