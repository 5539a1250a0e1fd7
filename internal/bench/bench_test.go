package bench

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/master"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

const benchJSON = `{
  "bench": {"name": "lab-1"},
  "channels": [
    {"name": "psu", "device": "pss", "chip_select": 0, "interval_ms": 5},
    {"name": "probe", "device": "ads866x", "chip_select": 1, "interval_ms": 10, "input_range": "BIPOLAR_10V24"},
    {"name": "ref", "device": "ad5672", "chip_select": 2, "interval_ms": 10}
  ]
}`

const benchYAML = `
bench:
  name: lab-2
channels:
  - name: psu
    device: pss
    chip_select: 3
    interval_ms: 20
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lab1.json", benchJSON)
	writeFile(t, dir, "lab2.yaml", benchYAML)

	l, err := NewProfileLoader([]string{dir})
	if err != nil {
		t.Fatal(err)
	}

	p1, err := l.Load("lab1")
	if err != nil {
		t.Fatal(err)
	}
	if p1.Bench.Name != "lab-1" || len(p1.Channels) != 3 {
		t.Errorf("unexpected profile %+v", p1)
	}

	p2, err := l.Load("lab2")
	if err != nil {
		t.Fatal(err)
	}
	want := []types.ChannelDefinition{{Name: "psu", Device: types.DeviceTypePSS, ChipSelect: 3, IntervalMs: 20}}
	if diff := cmp.Diff(want, p2.Channels); diff != "" {
		t.Errorf("yaml channels mismatch (-want +got):\n%s", diff)
	}

	// cached
	again, _ := l.Load("lab2")
	if again != p2 {
		t.Error("second load did not hit the cache")
	}

	if _, err := l.Load("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestValidatorRejects(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown device", `{"bench":{"name":"x"},"channels":[{"name":"a","device":"mcp3008","chip_select":0,"interval_ms":1}]}`},
		{"no channels", `{"bench":{"name":"x"},"channels":[]}`},
		{"zero interval", `{"bench":{"name":"x"},"channels":[{"name":"a","device":"pss","chip_select":0,"interval_ms":0}]}`},
		{"bad range", `{"bench":{"name":"x"},"channels":[{"name":"a","device":"ads866x","chip_select":0,"interval_ms":1,"input_range":"5V"}]}`},
		{"duplicate chip select", `{"bench":{"name":"x"},"channels":[
			{"name":"a","device":"pss","chip_select":0,"interval_ms":1},
			{"name":"b","device":"pss","chip_select":0,"interval_ms":1}]}`},
		{"duplicate name", `{"bench":{"name":"x"},"channels":[
			{"name":"a","device":"pss","chip_select":0,"interval_ms":1},
			{"name":"a","device":"pss","chip_select":1,"interval_ms":1}]}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.ValidateProfile([]byte(tt.doc)); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := v.ValidateProfile([]byte(benchJSON)); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
}

func newTestManager(t *testing.T, bus *master.Virtual) *Manager {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "lab1.json", benchJSON)

	m, err := NewManager([]string{dir}, bus, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.LoadProfile("lab1"); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestManagerLookup(t *testing.T) {
	m := newTestManager(t, master.NewVirtual(nil))

	devs := m.ListDevices()
	if len(devs) != 3 {
		t.Fatalf("got %d devices", len(devs))
	}

	byID, err := m.Lookup(devs[1].ID.String())
	if err != nil || byID.Name != "probe" {
		t.Errorf("lookup by id: %v %v", byID, err)
	}
	if byID.InputRange != ads866x.Bipolar10V24 {
		t.Errorf("input range = %v", byID.InputRange)
	}

	if _, err := m.PSS("psu"); err != nil {
		t.Error(err)
	}
	if _, err := m.ADC("probe"); err != nil {
		t.Error(err)
	}
	if _, err := m.DAC("ref"); err != nil {
		t.Error(err)
	}
	if _, err := m.PSS("probe"); !errors.Is(err, ErrDeviceType) {
		t.Errorf("expected ErrDeviceType, got %v", err)
	}
	if _, err := m.ADC("nope"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}

	if diff := cmp.Diff([]string{"psu"}, m.PSSNames()); diff != "" {
		t.Errorf("PSSNames mismatch (-want +got):\n%s", diff)
	}
}

func TestManagerStartSendsPreTransfer(t *testing.T) {
	bus := master.NewVirtual(nil)
	m := newTestManager(t, bus)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if !m.IsRunning() {
		t.Error("not running after Start")
	}
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	// both the PSS and the standalone DAC reset and enable their DAC first
	transfers := bus.Transfers()
	if len(transfers) < 4 {
		t.Fatalf("only %d transfers", len(transfers))
	}
	want := [][]byte{{0x60, 0x12, 0x34}, {0x80, 0x00, 0x01}, {0x60, 0x12, 0x34}, {0x80, 0x00, 0x01}}
	if diff := cmp.Diff(want, transfers[:4]); diff != "" {
		t.Errorf("pre-transfer mismatch (-want +got):\n%s", diff)
	}

	var sawPSSFrame bool
	for _, tx := range transfers[4:] {
		if len(tx) == 11 {
			sawPSSFrame = true
		}
	}
	if !sawPSSFrame {
		t.Error("no 88-bit PSS frame was clocked")
	}
}

func TestManagerStartWithoutProfile(t *testing.T) {
	m, err := NewManager(nil, master.NewVirtual(nil), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); !errors.Is(err, ErrNoProfile) {
		t.Errorf("expected ErrNoProfile, got %v", err)
	}
}
