package relay

import (
	"sort"
	"sync"
)

// Channel is the write side of a live device connection. Implementations
// must be safe for concurrent use; the relay sends to the same device from
// multiple goroutines.
type Channel interface {
	Send(frame any) error
}

// Registry tracks the live connection for each device. At most one
// channel is registered per device ID: a device that reconnects before
// its old socket is reaped simply overwrites the stale entry, so the
// newest connection always wins.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for registry operations.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register binds deviceID to ch, unconditionally replacing any previous
// channel. The superseded channel is not closed here; its own session
// notices the broken socket and cleans up without being able to evict
// the newcomer.
func (r *Registry) Register(deviceID string, ch Channel) {
	r.mu.Lock()
	_, replaced := r.channels[deviceID]
	r.channels[deviceID] = ch
	r.mu.Unlock()

	if replaced {
		r.logger.Info("device reconnected, replacing stale channel", "device_id", deviceID)
	} else {
		r.logger.Debug("device registered", "device_id", deviceID)
	}
}

// Lookup returns the live channel for deviceID, if any.
func (r *Registry) Lookup(deviceID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[deviceID]
	return ch, ok
}

// UnregisterIfCurrent removes deviceID only if its registered channel is
// still ch. A session going away after being superseded must not tear
// down the replacement's registration. Reports whether an entry was
// removed.
func (r *Registry) UnregisterIfCurrent(deviceID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.channels[deviceID]
	if !ok || current != ch {
		return false
	}
	delete(r.channels, deviceID)
	return true
}

// Count returns the number of connected devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels)
}

// DeviceIDs returns the IDs of all connected devices, sorted.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
