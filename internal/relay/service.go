package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/vrlink/vrlink-core/internal/link"
)

// Service is the user-facing command surface over the relay: every
// action the chat bot performs on behalf of a user resolves to one of
// these calls.
type Service struct {
	links          link.Repository
	registry       *Registry
	pending        *PendingTable
	requestTimeout time.Duration

	logger  Logger
	events  Events
	metrics Metrics
}

// NewService creates the command service. requestTimeout is the default
// deadline for request/reply exchanges.
func NewService(links link.Repository, registry *Registry, pending *PendingTable, requestTimeout time.Duration) *Service {
	return &Service{
		links:          links,
		registry:       registry,
		pending:        pending,
		requestTimeout: requestTimeout,
		logger:         noopLogger{},
		events:         noopEvents{},
		metrics:        noopMetrics{},
	}
}

// SetLogger sets the logger for command operations.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetEvents sets the lifecycle event sink.
func (s *Service) SetEvents(events Events) {
	if events != nil {
		s.events = events
	}
}

// SetMetrics sets the metrics sink.
func (s *Service) SetMetrics(metrics Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// GeneratePairingCode issues a fresh six-digit code for userID,
// replacing any previous code while leaving an existing device binding
// untouched.
func (s *Service) GeneratePairingCode(ctx context.Context, userID string) (string, error) {
	code := link.NewPairingCode()
	if err := s.links.UpsertCode(ctx, userID, code); err != nil {
		return "", fmt.Errorf("storing pairing code: %w", err)
	}

	s.logger.Info("pairing code issued", "user_id", userID)
	return code, nil
}

// Device returns userID's pairing record. Returns link.ErrNotLinked
// when the user has no device bound.
func (s *Service) Device(ctx context.Context, userID string) (*link.Link, error) {
	l, err := s.links.GetByUserID(ctx, userID)
	if errors.Is(err, link.ErrLinkNotFound) {
		return nil, link.ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("loading link: %w", err)
	}
	if !l.Linked() {
		return nil, link.ErrNotLinked
	}
	return l, nil
}

// IsConnected reports whether deviceID currently holds a live
// connection.
func (s *Service) IsConnected(deviceID string) bool {
	_, ok := s.registry.Lookup(deviceID)
	return ok
}

// ConnectedDevices returns the IDs of all connected devices, sorted.
func (s *Service) ConnectedDevices() []string {
	return s.registry.DeviceIDs()
}

// Unlink clears userID's device binding and, best effort, tells the
// device to forget its pairing. The binding is cleared even when the
// device is unreachable. Returns the unlinked device ID.
func (s *Service) Unlink(ctx context.Context, userID string) (string, error) {
	l, err := s.Device(ctx, userID)
	if err != nil {
		return "", err
	}
	deviceID := *l.DeviceID

	if err := s.links.ClearDevice(ctx, userID); err != nil {
		return "", fmt.Errorf("clearing device binding: %w", err)
	}

	if ch, ok := s.registry.Lookup(deviceID); ok {
		if err := ch.Send(forceUnlink{Type: frameForceUnlink}); err != nil {
			s.logger.Warn("force unlink notify failed", "device_id", deviceID, "error", err)
		}
	}

	s.events.DeviceUnlinked(userID, deviceID)
	s.logger.Info("device unlinked", "user_id", userID, "device_id", deviceID)
	return deviceID, nil
}

// SendMessage pushes a fire-and-forget text frame to userID's device.
func (s *Service) SendMessage(ctx context.Context, userID, text string) error {
	l, err := s.Device(ctx, userID)
	if err != nil {
		return err
	}
	deviceID := *l.DeviceID

	ch, ok := s.registry.Lookup(deviceID)
	if !ok {
		return ErrNotConnected
	}
	if err := ch.Send(discordMessage{Type: frameDiscordMessage, Text: text}); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.logger.Debug("message delivered", "user_id", userID, "device_id", deviceID)
	return nil
}

// RequestLibrary asks userID's device for its installed-app listing and
// waits for the matching reply. A timeout of zero or less uses the
// configured default. The returned payload is the listing exactly as
// the device reported it.
func (s *Service) RequestLibrary(ctx context.Context, userID string, timeout time.Duration) (any, error) {
	l, err := s.Device(ctx, userID)
	if err != nil {
		return nil, err
	}
	deviceID := *l.DeviceID

	ch, ok := s.registry.Lookup(deviceID)
	if !ok {
		return nil, ErrNotConnected
	}

	requestID := newRequestID()
	p, err := s.pending.Create(deviceID, requestID)
	if err != nil {
		return nil, err
	}

	if err := ch.Send(getLibrary{Type: frameGetLibrary, RequestID: requestID}); err != nil {
		s.pending.Remove(deviceID, requestID)
		s.metrics.RecordRequest(deviceID, 0, OutcomeSendFailed)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	if timeout <= 0 {
		timeout = s.requestTimeout
	}

	start := time.Now()
	payload, err := s.pending.Await(ctx, p, timeout)
	s.metrics.RecordRequest(deviceID, time.Since(start), requestOutcome(err))
	if err != nil {
		s.logger.Warn("library request failed",
			"user_id", userID, "device_id", deviceID, "request_id", requestID, "error", err)
		return nil, err
	}

	s.logger.Debug("library request resolved",
		"user_id", userID, "device_id", deviceID, "request_id", requestID)
	return payload, nil
}

func requestOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrRequestTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrDeviceDisconnected):
		return OutcomeDisconnected
	default:
		return OutcomeCancelled
	}
}

// newRequestID returns a random ten-digit correlation ID. IDs only need
// to be unique among a single device's in-flight requests.
func newRequestID() string {
	return strconv.FormatInt(1_000_000_000+rand.Int63n(9_000_000_000), 10)
}
