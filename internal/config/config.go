package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bus transports.
const (
	TransportVirtual = "virtual"
	TransportArduino = "arduino"
	TransportSpidev  = "spidev"
	TransportIPC     = "ipc"
	TransportGRPC    = "grpc"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Bus      BusConfig      `mapstructure:"bus"`
	Bench    BenchConfig    `mapstructure:"bench"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds how long a handler waits for a device result.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// BusConfig selects the bus master. Transport is what the server talks to;
// Master is what a bus server process (ipc or grpc) drives.
type BusConfig struct {
	Transport string `mapstructure:"transport"`
	Master    string `mapstructure:"master"`

	SerialPort  string        `mapstructure:"serial_port"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// SpidevPorts lists one port per chip select, index = chip select.
	SpidevPorts []string `mapstructure:"spidev_ports"`
	SpeedHz     int64    `mapstructure:"speed_hz"`
	SPIMode     int      `mapstructure:"spi_mode"`

	IPCCommand string   `mapstructure:"ipc_command"`
	IPCArgs    []string `mapstructure:"ipc_args"`

	GRPCAddress     string        `mapstructure:"grpc_address"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
}

type BenchConfig struct {
	Profile     string   `mapstructure:"profile"`
	SearchPaths []string `mapstructure:"search_paths"`
	// AutoStart starts the bus scheduler after loading the profile.
	AutoStart bool `mapstructure:"auto_start"`
}

type RecorderConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "5s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openspicore")
	v.SetDefault("database.user", "openspicore")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("bus.transport", TransportVirtual)
	v.SetDefault("bus.master", TransportVirtual)
	v.SetDefault("bus.baud", 115200)
	v.SetDefault("bus.read_timeout", "1s")
	v.SetDefault("bus.speed_hz", 1_000_000)
	v.SetDefault("bus.spi_mode", 0)
	v.SetDefault("bus.ipc_command", "spi-bus")
	v.SetDefault("bus.grpc_address", "localhost:50052")
	v.SetDefault("bus.transfer_timeout", "1s")

	v.SetDefault("bench.search_paths", []string{"configs/benches"})

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.sample_interval", "1s")

	v.SetDefault("log.level", "info")
}

// Load liest die YAML-Datei; ohne Pfad gelten nur Defaults und Umgebung
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment Variables mit Prefix OSC_, z.B. OSC_BUS_TRANSPORT
	v.SetEnvPrefix("OSC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Bus.Transport {
	case TransportVirtual, TransportArduino, TransportSpidev, TransportIPC, TransportGRPC:
	default:
		return fmt.Errorf("unknown bus transport %q", c.Bus.Transport)
	}
	switch c.Bus.Master {
	case TransportVirtual, TransportArduino, TransportSpidev:
	default:
		return fmt.Errorf("unknown bus master %q", c.Bus.Master)
	}
	if c.Recorder.Enabled && c.Recorder.SampleInterval <= 0 {
		return fmt.Errorf("recorder.sample_interval must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// SpidevPortMap keys the configured ports by chip select.
func (b *BusConfig) SpidevPortMap() map[uint8]string {
	ports := make(map[uint8]string, len(b.SpidevPorts))
	for i, p := range b.SpidevPorts {
		if p != "" {
			ports[uint8(i)] = p
		}
	}
	return ports
}
