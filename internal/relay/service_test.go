package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vrlink/vrlink-core/internal/link"
)

// mockRepo is an in-memory link.Repository for tests.
type mockRepo struct {
	mu    sync.Mutex
	links map[string]*link.Link
}

func newMockRepo() *mockRepo {
	return &mockRepo{links: make(map[string]*link.Link)}
}

func (m *mockRepo) put(l *link.Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.UserID] = l
}

func (m *mockRepo) get(userID string) *link.Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (m *mockRepo) GetByUserID(_ context.Context, userID string) (*link.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return nil, link.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepo) UserIDByCode(_ context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.links {
		if l.Code != nil && *l.Code == code {
			return id, nil
		}
	}
	return "", link.ErrCodeNotFound
}

func (m *mockRepo) UserIDByDevice(_ context.Context, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.links {
		if l.DeviceID != nil && *l.DeviceID == deviceID {
			return id, nil
		}
	}
	return "", link.ErrLinkNotFound
}

func (m *mockRepo) UpsertCode(_ context.Context, userID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		l = &link.Link{UserID: userID}
		m.links[userID] = l
	}
	l.Code = &code
	return nil
}

func (m *mockRepo) BindDevice(_ context.Context, userID, deviceID string, deviceName *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return link.ErrLinkNotFound
	}
	l.DeviceID = &deviceID
	l.DeviceName = deviceName
	return nil
}

func (m *mockRepo) UpdateDeviceName(_ context.Context, userID, deviceName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return link.ErrLinkNotFound
	}
	l.DeviceName = &deviceName
	return nil
}

func (m *mockRepo) ClearDevice(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return link.ErrLinkNotFound
	}
	l.DeviceID = nil
	l.DeviceName = nil
	return nil
}

func strp(s string) *string { return &s }

// newTestService wires a service over fresh in-memory collaborators.
func newTestService(repo *mockRepo) (*Service, *Registry, *PendingTable) {
	registry := NewRegistry()
	pending := NewPendingTable()
	svc := NewService(repo, registry, pending, time.Second)
	return svc, registry, pending
}

func TestGeneratePairingCode(t *testing.T) {
	repo := newMockRepo()
	svc, _, _ := newTestService(repo)

	code, err := svc.GeneratePairingCode(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GeneratePairingCode() error: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code %q has length %d, want 6", code, len(code))
	}

	l := repo.get("user-1")
	if l == nil || l.Code == nil || *l.Code != code {
		t.Errorf("stored code = %+v, want %q", l, code)
	}
}

func TestGeneratePairingCodeKeepsBinding(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", Code: strp("111111"), DeviceID: strp("quest-1")})
	svc, _, _ := newTestService(repo)

	if _, err := svc.GeneratePairingCode(context.Background(), "user-1"); err != nil {
		t.Fatalf("GeneratePairingCode() error: %v", err)
	}

	l := repo.get("user-1")
	if l.DeviceID == nil || *l.DeviceID != "quest-1" {
		t.Error("regenerating a code unbound the device")
	}
}

func TestDeviceNotLinked(t *testing.T) {
	repo := newMockRepo()
	svc, _, _ := newTestService(repo)

	if _, err := svc.Device(context.Background(), "nobody"); !errors.Is(err, link.ErrNotLinked) {
		t.Errorf("Device() for unknown user = %v, want ErrNotLinked", err)
	}

	// A row with a code but no device is still not linked.
	repo.put(&link.Link{UserID: "user-1", Code: strp("123456")})
	if _, err := svc.Device(context.Background(), "user-1"); !errors.Is(err, link.ErrNotLinked) {
		t.Errorf("Device() for codeholder = %v, want ErrNotLinked", err)
	}
}

func TestSendMessageDeliversFrame(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, registry, _ := newTestService(repo)

	ch := newFakeChannel()
	registry.Register("quest-1", ch)

	if err := svc.SendMessage(context.Background(), "user-1", "hello from chat"); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	frames := ch.sent()
	if len(frames) != 1 {
		t.Fatalf("device received %d frames, want 1", len(frames))
	}
	msg, ok := frames[0].(discordMessage)
	if !ok {
		t.Fatalf("frame type = %T, want discordMessage", frames[0])
	}
	if msg.Type != frameDiscordMessage || msg.Text != "hello from chat" {
		t.Errorf("frame = %+v", msg)
	}
}

func TestSendMessageNotConnected(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, _, _ := newTestService(repo)

	if err := svc.SendMessage(context.Background(), "user-1", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
	}
}

func TestSendMessageSendFailure(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, registry, _ := newTestService(repo)

	ch := newFakeChannel()
	ch.sendErr = errors.New("broken pipe")
	registry.Register("quest-1", ch)

	if err := svc.SendMessage(context.Background(), "user-1", "hi"); !errors.Is(err, ErrSendFailed) {
		t.Errorf("SendMessage() error = %v, want ErrSendFailed", err)
	}
}

func TestUnlinkClearsBindingAndNotifiesDevice(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", Code: strp("123456"), DeviceID: strp("quest-1")})
	svc, registry, _ := newTestService(repo)

	ch := newFakeChannel()
	registry.Register("quest-1", ch)

	deviceID, err := svc.Unlink(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Unlink() error: %v", err)
	}
	if deviceID != "quest-1" {
		t.Errorf("Unlink() = %q, want quest-1", deviceID)
	}

	l := repo.get("user-1")
	if l.DeviceID != nil {
		t.Error("device binding not cleared")
	}
	if l.Code == nil {
		t.Error("pairing code should survive an unlink")
	}

	frames := ch.sent()
	if len(frames) != 1 {
		t.Fatalf("device received %d frames, want 1", len(frames))
	}
	if f, ok := frames[0].(forceUnlink); !ok || f.Type != frameForceUnlink {
		t.Errorf("frame = %+v, want force_unlink", frames[0])
	}

	// The connection stays registered; only the pairing record changes.
	if _, ok := registry.Lookup("quest-1"); !ok {
		t.Error("unlink removed the live connection from the registry")
	}
}

func TestUnlinkOfflineDevice(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, _, _ := newTestService(repo)

	deviceID, err := svc.Unlink(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Unlink() of offline device error: %v", err)
	}
	if deviceID != "quest-1" {
		t.Errorf("Unlink() = %q, want quest-1", deviceID)
	}
	if repo.get("user-1").DeviceID != nil {
		t.Error("binding not cleared for offline device")
	}
}

func TestUnlinkNotLinked(t *testing.T) {
	repo := newMockRepo()
	svc, _, _ := newTestService(repo)

	if _, err := svc.Unlink(context.Background(), "user-1"); !errors.Is(err, link.ErrNotLinked) {
		t.Errorf("Unlink() error = %v, want ErrNotLinked", err)
	}
}

func TestRequestLibraryResolves(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, registry, pending := newTestService(repo)

	ch := newFakeChannel()
	registry.Register("quest-1", ch)

	go func() {
		frame := <-ch.notify
		req, ok := frame.(getLibrary)
		if !ok {
			t.Errorf("outbound frame type = %T, want getLibrary", frame)
			return
		}
		if req.Type != frameGetLibrary || len(req.RequestID) != 10 {
			t.Errorf("outbound frame = %+v", req)
		}
		pending.Resolve("quest-1", req.RequestID, []string{"Beat Saber", "Moss"})
	}()

	payload, err := svc.RequestLibrary(context.Background(), "user-1", 2*time.Second)
	if err != nil {
		t.Fatalf("RequestLibrary() error: %v", err)
	}
	apps, ok := payload.([]string)
	if !ok || len(apps) != 2 {
		t.Errorf("payload = %v", payload)
	}
}

func TestRequestLibraryTimeout(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, registry, pending := newTestService(repo)

	registry.Register("quest-1", newFakeChannel())

	_, err := svc.RequestLibrary(context.Background(), "user-1", 20*time.Millisecond)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("RequestLibrary() error = %v, want ErrRequestTimeout", err)
	}
	if pending.Len() != 0 {
		t.Errorf("pending.Len() = %d after timeout, want 0", pending.Len())
	}
}

func TestRequestLibraryNotConnected(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, _, _ := newTestService(repo)

	if _, err := svc.RequestLibrary(context.Background(), "user-1", time.Second); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RequestLibrary() error = %v, want ErrNotConnected", err)
	}
}

func TestRequestLibrarySendFailureCleansUp(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, registry, pending := newTestService(repo)

	ch := newFakeChannel()
	ch.sendErr = errors.New("broken pipe")
	registry.Register("quest-1", ch)

	if _, err := svc.RequestLibrary(context.Background(), "user-1", time.Second); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("RequestLibrary() error = %v, want ErrSendFailed", err)
	}
	if pending.Len() != 0 {
		t.Errorf("pending.Len() = %d after failed send, want 0", pending.Len())
	}
}

func TestRequestLibraryDeviceDisconnected(t *testing.T) {
	repo := newMockRepo()
	repo.put(&link.Link{UserID: "user-1", DeviceID: strp("quest-1")})
	svc, registry, pending := newTestService(repo)

	ch := newFakeChannel()
	registry.Register("quest-1", ch)

	go func() {
		<-ch.notify
		pending.CancelDevice("quest-1")
	}()

	if _, err := svc.RequestLibrary(context.Background(), "user-1", 2*time.Second); !errors.Is(err, ErrDeviceDisconnected) {
		t.Errorf("RequestLibrary() error = %v, want ErrDeviceDisconnected", err)
	}
}

func TestConnectedDevices(t *testing.T) {
	repo := newMockRepo()
	svc, registry, _ := newTestService(repo)

	registry.Register("quest-2", newFakeChannel())
	registry.Register("quest-1", newFakeChannel())

	got := svc.ConnectedDevices()
	if len(got) != 2 || got[0] != "quest-1" || got[1] != "quest-2" {
		t.Errorf("ConnectedDevices() = %v", got)
	}
	if !svc.IsConnected("quest-1") {
		t.Error("IsConnected(quest-1) = false")
	}
	if svc.IsConnected("ghost") {
		t.Error("IsConnected(ghost) = true")
	}
}

func TestNewRequestIDFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := newRequestID()
		if len(id) != 10 {
			t.Fatalf("request ID %q has length %d, want 10", id, len(id))
		}
		if id[0] == '0' {
			t.Fatalf("request ID %q has a leading zero", id)
		}
	}
}
