package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/OpenSpiCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSpiCore/internal/bench"
	"github.com/KevinKickass/OpenSpiCore/internal/charge"
	"github.com/KevinKickass/OpenSpiCore/internal/config"
	"github.com/KevinKickass/OpenSpiCore/internal/interfaces"
	"github.com/KevinKickass/OpenSpiCore/internal/master"
	"github.com/KevinKickass/OpenSpiCore/internal/storage"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

type fakeLifecycle struct {
	cfg     *config.Config
	bm      *bench.Manager
	charges *charge.Registry
}

func (f *fakeLifecycle) Config() *config.Config             { return f.cfg }
func (f *fakeLifecycle) Storage() *storage.PostgresClient   { return nil }
func (f *fakeLifecycle) BenchManager() *bench.Manager       { return f.bm }
func (f *fakeLifecycle) ChargeRegistry() *charge.Registry   { return f.charges }
func (f *fakeLifecycle) StartBus() error                    { return f.bm.Start() }
func (f *fakeLifecycle) StopBus()                           { f.bm.Stop() }
func (f *fakeLifecycle) Shutdown(ctx context.Context) error { f.bm.Stop(); return nil }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{
		State:       "running",
		Bench:       f.bm.Profile().Bench.Name,
		Transport:   config.TransportVirtual,
		BusRunning:  f.bm.IsRunning(),
		DeviceCount: len(f.bm.ListDevices()),
	}
}

func newTestServer(t *testing.T) (*Server, *fakeLifecycle) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	bm, err := bench.NewManager(nil, master.NewVirtual(nil), logger)
	if err != nil {
		t.Fatal(err)
	}
	profile := &types.BenchProfile{
		Bench: types.BenchInfo{Name: "rest-bench"},
		Channels: []types.ChannelDefinition{
			{Name: "psu", Device: types.DeviceTypePSS, ChipSelect: 0, IntervalMs: 2},
			{Name: "probe", Device: types.DeviceTypeADS866x, ChipSelect: 1, IntervalMs: 2},
			{Name: "ref", Device: types.DeviceTypeAD5672, ChipSelect: 2, IntervalMs: 2},
		},
	}
	if err := bm.Build(profile); err != nil {
		t.Fatal(err)
	}

	registry := charge.NewRegistry(func(name string) (charge.Supply, error) {
		p, err := bm.PSS(name)
		if err != nil {
			return nil, err
		}
		return p, nil
	}, nil, logger)

	cfg := &config.Config{Server: config.ServerConfig{HTTPPort: 0, RequestTimeout: 100 * time.Millisecond}}
	lm := &fakeLifecycle{cfg: cfg, bm: bm, charges: registry}

	s := NewServer(cfg, lm, logger, websocket.NewHub(logger))
	t.Cleanup(bm.Stop)
	return s, lm
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doRequest(t, s, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestListDevices(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}

	var resp struct {
		Devices []types.DeviceInfo `json:"devices"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range resp.Devices {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"psu", "probe", "ref"}, names); diff != "" {
		t.Errorf("device order mismatch (-want +got):\n%s", diff)
	}
	if resp.Devices[1].InputRange != "UNIPOLAR_5V12" {
		t.Errorf("default input range = %q", resp.Devices[1].InputRange)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown device", http.MethodGet, "/api/v1/devices/nope", nil, http.StatusNotFound, types.CodeNotFound},
		{"wrong device type", http.MethodGet, "/api/v1/adc/psu/voltage", nil, http.StatusBadRequest, types.CodeBadRequest},
		{"unknown tracking mode", http.MethodPut, "/api/v1/pss/psu/config",
			map[string]any{"tracking_mode": "power"}, http.StatusBadRequest, types.CodeInvalidConfig},
		{"incomplete config", http.MethodPut, "/api/v1/pss/psu/config",
			map[string]any{"tracking_mode": "voltage", "target_voltage": 3.0}, http.StatusBadRequest, types.CodeInvalidConfig},
		{"dac channel out of range", http.MethodPost, "/api/v1/dac/ref/channels/9",
			map[string]any{"voltage": 1.0}, http.StatusBadRequest, types.CodeInvalidConfig},
		{"unknown input range", http.MethodPost, "/api/v1/adc/probe/initialize",
			map[string]any{"input_range": "BIPOLAR_99V"}, http.StatusBadRequest, types.CodeInvalidConfig},
		{"bad gpo level", http.MethodPost, "/api/v1/adc/probe/gpo",
			map[string]any{"level": "maybe"}, http.StatusBadRequest, types.CodeBadRequest},
		{"charge params", http.MethodPost, "/api/v1/charge/psu/start",
			map[string]any{"target_voltage": 3.0, "max_current": 0.5, "threshold_current": 0.9}, http.StatusBadRequest, types.CodeInvalidConfig},
		{"abort idle charge", http.MethodPost, "/api/v1/charge/psu/abort", nil, http.StatusConflict, types.CodeConflict},
		{"storage disabled", http.MethodGet, "/api/v1/pss/psu/measurements", nil, http.StatusNotImplemented, types.CodeNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			if got := decodeError(t, w).Error.Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestReadTimesOutWhenBusStopped(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/pss/psu/output", nil)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if got := decodeError(t, w).Error.Code; got != types.CodeTimeout {
		t.Errorf("code = %s", got)
	}
}

func TestBusStartAndDACWrite(t *testing.T) {
	s, lm := newTestServer(t)
	lm.cfg.Server.RequestTimeout = 2 * time.Second

	if w := doRequest(t, s, http.MethodPost, "/api/v1/bus/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body)
	}
	if w := doRequest(t, s, http.MethodPost, "/api/v1/bus/start", nil); w.Code != http.StatusConflict {
		t.Errorf("second start status = %d", w.Code)
	}

	w := doRequest(t, s, http.MethodPost, "/api/v1/dac/ref/channels/3", map[string]any{"voltage": 2.5, "load": true})
	if w.Code != http.StatusOK {
		t.Fatalf("write status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Channel int  `json:"channel"`
		Loaded  bool `json:"loaded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Channel != 3 || !resp.Loaded {
		t.Errorf("unexpected response %+v", resp)
	}

	if w := doRequest(t, s, http.MethodPost, "/api/v1/bus/stop", nil); w.Code != http.StatusOK {
		t.Errorf("stop status = %d", w.Code)
	}
	if lm.bm.IsRunning() {
		t.Error("bus still running after stop")
	}
}

func TestChargeStatusIdle(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/charge/psu/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status charge.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.State != charge.StateIdle || status.Device != "psu" {
		t.Errorf("unexpected status %+v", status)
	}
}
