package relay

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrlink/vrlink-core/internal/infrastructure/config"
	"github.com/vrlink/vrlink-core/internal/link"
)

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Host:           "127.0.0.1",
		Port:           0,
		MaxMessageSize: 65536,
		PingInterval:   30,
		PongTimeout:    10,
		WriteTimeout:   5,
		RequestTimeout: 8,
		BindRetryDelay: 1,
	}
}

// newTestRelay mounts a relay server on an httptest listener and
// returns it together with its collaborators.
func newTestRelay(t *testing.T, repo *mockRepo) (*Server, *httptest.Server) {
	t.Helper()

	srv := NewServer(testRelayConfig(), repo, NewRegistry(), NewPendingTable())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialDevice(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()

	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return frame
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func sessionCount(s *Server) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func TestHelloRegistersAndAcks(t *testing.T) {
	srv, ts := newTestRelay(t, newMockRepo())
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "hello", "device_id": "quest-1"})

	ack := readFrame(t, ws)
	if ack["type"] != "hello" || ack["ok"] != true {
		t.Errorf("ack = %v, want hello/ok", ack)
	}

	// Registration happens before the ack is written.
	if _, ok := srv.registry.Lookup("quest-1"); !ok {
		t.Error("device not registered after hello ack")
	}
}

func TestHelloWithoutDeviceIDIgnored(t *testing.T) {
	srv, ts := newTestRelay(t, newMockRepo())
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "hello"})
	// No reply expected; probe with a pair frame that does get one.
	sendFrame(t, ws, map[string]any{"type": "pair"})

	result := readFrame(t, ws)
	if result["type"] != "pair_result" || result["reason"] != "missing_fields" {
		t.Errorf("frame = %v, want pair_result/missing_fields", result)
	}
	if srv.registry.Count() != 0 {
		t.Errorf("registry.Count() = %d, want 0", srv.registry.Count())
	}
}

func TestHelloRefreshesDeviceName(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1"), DeviceName: strp("Old Name")})
	_, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{
		"type": "hello", "device_id": "quest-1", "device_name": "New Name",
	})
	readFrame(t, ws)

	waitFor(t, func() bool {
		l := repo.get("user-1")
		return l.DeviceName != nil && *l.DeviceName == "New Name"
	}, "device name was not refreshed after hello")
}

func TestPairSuccess(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", Code: strp("123456")})
	srv, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{
		"type": "pair", "code": "123456", "device_id": "quest-1", "device_name": "Living Room Quest",
	})

	result := readFrame(t, ws)
	if result["type"] != "pair_result" || result["ok"] != true {
		t.Fatalf("result = %v, want ok pair_result", result)
	}
	if result["discord_id"] != "user-1" {
		t.Errorf("discord_id = %v, want user-1", result["discord_id"])
	}

	l := repo.get("user-1")
	if l.DeviceID == nil || *l.DeviceID != "quest-1" {
		t.Errorf("binding = %+v, want quest-1", l)
	}
	if l.DeviceName == nil || *l.DeviceName != "Living Room Quest" {
		t.Errorf("device name = %v", l.DeviceName)
	}
	if _, ok := srv.registry.Lookup("quest-1"); !ok {
		t.Error("device not registered after pairing")
	}
}

func TestPairInvalidCode(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", Code: strp("123456")})
	_, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "pair", "code": "000000", "device_id": "quest-1"})

	result := readFrame(t, ws)
	if result["ok"] != false || result["reason"] != "invalid_code" {
		t.Errorf("result = %v, want invalid_code", result)
	}
}

func TestPairMissingFields(t *testing.T) {
	_, ts := newTestRelay(t, newMockRepo())
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "pair", "code": "123456"})

	result := readFrame(t, ws)
	if result["ok"] != false || result["reason"] != "missing_fields" {
		t.Errorf("result = %v, want missing_fields", result)
	}
}

func TestUnlinkClearsLinkKeepsConnection(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", Code: strp("123456"), DeviceID: strp("quest-1")})
	srv, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "hello", "device_id": "quest-1"})
	readFrame(t, ws)

	sendFrame(t, ws, map[string]any{"type": "unlink", "device_id": "quest-1"})
	result := readFrame(t, ws)
	if result["type"] != "pair_result" || result["ok"] != true {
		t.Fatalf("result = %v, want ok pair_result", result)
	}

	l := repo.get("user-1")
	if l.DeviceID != nil {
		t.Error("binding not cleared by device unlink")
	}
	if l.Code == nil {
		t.Error("pairing code should survive a device unlink")
	}

	// The connection stays live and registered.
	if _, ok := srv.registry.Lookup("quest-1"); !ok {
		t.Error("device unregistered by unlink")
	}
}

func TestUnlinkUnknownDevice(t *testing.T) {
	_, ts := newTestRelay(t, newMockRepo())
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "unlink", "device_id": "ghost"})

	result := readFrame(t, ws)
	if result["ok"] != false || result["reason"] != "not_linked" {
		t.Errorf("result = %v, want not_linked", result)
	}
}

func TestUnlinkMissingDeviceID(t *testing.T) {
	_, ts := newTestRelay(t, newMockRepo())
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "unlink"})

	result := readFrame(t, ws)
	if result["ok"] != false || result["reason"] != "missing_device_id" {
		t.Errorf("result = %v, want missing_device_id", result)
	}
}

func TestLibraryRoundTrip(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	srv, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "hello", "device_id": "quest-1"})
	readFrame(t, ws)

	// Device side: answer the library request when it arrives.
	go func() {
		req := readFrame(t, ws)
		sendFrame(t, ws, map[string]any{
			"type":       "library_response",
			"request_id": req["request_id"],
			"apps":       []string{"Beat Saber", "Moss"},
		})
	}()

	svc := NewService(repo, srv.registry, srv.pending, 8*time.Second)
	payload, err := svc.RequestLibrary(context.Background(), "user-1", 2*time.Second)
	if err != nil {
		t.Fatalf("RequestLibrary() error: %v", err)
	}

	apps, ok := payload.([]any)
	if !ok || len(apps) != 2 || apps[0] != "Beat Saber" {
		t.Errorf("payload = %v", payload)
	}
}

func TestLibraryReplyWithNumericRequestID(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	srv, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "hello", "device_id": "quest-1"})
	readFrame(t, ws)

	// Some device builds echo the request ID as a JSON number and use
	// the legacy "library"/"items" frame shape.
	go func() {
		req := readFrame(t, ws)
		id, err := strconv.Atoi(req["request_id"].(string))
		if err != nil {
			t.Errorf("request_id %v is not numeric", req["request_id"])
			return
		}
		sendFrame(t, ws, map[string]any{
			"type":       "library",
			"request_id": id,
			"items":      []string{"Superhot"},
		})
	}()

	svc := NewService(repo, srv.registry, srv.pending, 8*time.Second)
	payload, err := svc.RequestLibrary(context.Background(), "user-1", 2*time.Second)
	if err != nil {
		t.Fatalf("RequestLibrary() error: %v", err)
	}
	items, ok := payload.([]any)
	if !ok || len(items) != 1 || items[0] != "Superhot" {
		t.Errorf("payload = %v", payload)
	}
}

func TestDisconnectCancelsPendingAndUnregisters(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	srv, ts := newTestRelay(t, repo)
	ws := dialDevice(t, ts)

	sendFrame(t, ws, map[string]any{"type": "hello", "device_id": "quest-1"})
	readFrame(t, ws)

	p, err := srv.pending.Create("quest-1", "1000000001")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	ws.Close()

	waitFor(t, func() bool { return srv.registry.Count() == 0 },
		"device still registered after disconnect")

	if _, err := srv.pending.Await(context.Background(), p, 2*time.Second); !errors.Is(err, ErrDeviceDisconnected) {
		t.Errorf("Await() error = %v, want ErrDeviceDisconnected", err)
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	repo := newMockRepo()
	srv, ts := newTestRelay(t, repo)

	ws1 := dialDevice(t, ts)
	sendFrame(t, ws1, map[string]any{"type": "hello", "device_id": "quest-1"})
	readFrame(t, ws1)

	ws2 := dialDevice(t, ts)
	sendFrame(t, ws2, map[string]any{"type": "hello", "device_id": "quest-1"})
	readFrame(t, ws2)

	// Closing the superseded socket must not evict the new registration.
	ws1.Close()
	waitFor(t, func() bool { return sessionCount(srv) == 1 },
		"old session did not unwind")

	if _, ok := srv.registry.Lookup("quest-1"); !ok {
		t.Error("replacement connection lost when old session closed")
	}
	if srv.registry.Count() != 1 {
		t.Errorf("registry.Count() = %d, want 1", srv.registry.Count())
	}
}
