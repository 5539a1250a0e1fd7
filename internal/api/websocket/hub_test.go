package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.done
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestBroadcastMeasurement(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	hub.Broadcast(NewMeasurementMessage("psu", 1.28, 0.6))

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeMeasurement || msg.Device != "psu" {
		t.Fatalf("unexpected message %+v", msg)
	}
	data, _ := json.Marshal(msg.Data)
	var m MeasurementData
	_ = json.Unmarshal(data, &m)
	if m.Voltage != 1.28 || m.Current != 0.6 {
		t.Errorf("measurement = %+v", m)
	}
}

func TestSubscriptionFiltersDevices(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "devices": []string{"psu2"}}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeSubscribed {
		t.Fatalf("expected subscribed ack, got %+v", msg)
	}

	hub.Broadcast(NewMeasurementMessage("psu1", 1, 1))
	hub.Broadcast(NewBenchStatusMessage("lab", true))
	hub.Broadcast(NewMeasurementMessage("psu2", 2, 2))

	// psu1 is filtered, bench-wide messages always pass
	if msg := readMessage(t, conn); msg.Type != MessageTypeBenchStatus {
		t.Errorf("first = %+v", msg)
	}
	if msg := readMessage(t, conn); msg.Device != "psu2" {
		t.Errorf("second = %+v", msg)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestRunReturnsOnCancel(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
