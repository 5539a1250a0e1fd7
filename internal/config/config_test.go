package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bus.Transport != TransportVirtual || cfg.Server.HTTPPort != 8080 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Bus.TransferTimeout != time.Second {
		t.Errorf("transfer_timeout = %v", cfg.Bus.TransferTimeout)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  http_port: 9090
bus:
  transport: spidev
  spidev_ports: ["/dev/spidev0.0", "", "/dev/spidev0.2"]
  speed_hz: 500000
bench:
  profile: lab1
recorder:
  enabled: true
  sample_interval: 250ms
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OSC_SERVER_HTTP_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("env override ignored: http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Recorder.SampleInterval != 250*time.Millisecond {
		t.Errorf("sample_interval = %v", cfg.Recorder.SampleInterval)
	}
	want := map[uint8]string{0: "/dev/spidev0.0", 2: "/dev/spidev0.2"}
	if diff := cmp.Diff(want, cfg.Bus.SpidevPortMap()); diff != "" {
		t.Errorf("spidev ports mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("OSC_BUS_TRANSPORT", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, Database: "osc", User: "u", Password: "p"}
	if got := c.DSN(); got != "postgres://u:p@db:5432/osc?sslmode=disable" {
		t.Errorf("DSN = %s", got)
	}
}
