package relay

import (
	"context"
	"sync"
	"time"
)

// pendingKey identifies an in-flight request. Request IDs are scoped per
// device, so two devices may use the same ID without colliding.
type pendingKey struct {
	deviceID  string
	requestID string
}

// result is what a waiter receives: a reply payload or a terminal error.
type result struct {
	payload any
	err     error
}

// Pending is a one-shot slot for a single request/reply exchange. The
// channel has capacity one and is written at most once, always while the
// table lock is held, so a send never blocks and a result is never lost.
type Pending struct {
	key pendingKey
	ch  chan result
}

// PendingTable correlates replies arriving on device connections with the
// callers waiting for them. Entries are removed exactly once, under the
// table lock, by whichever of resolve / cancel / timeout gets there first;
// the losers see the entry gone and stand down.
type PendingTable struct {
	mu      sync.Mutex
	pending map[pendingKey]*Pending
	logger  Logger
}

// NewPendingTable creates an empty correlation table.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		pending: make(map[pendingKey]*Pending),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for correlation events.
func (t *PendingTable) SetLogger(logger Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Create registers a new pending request and returns its slot. Returns
// ErrDuplicateRequest if the same (device, request) pair is already in
// flight.
func (t *PendingTable) Create(deviceID, requestID string) (*Pending, error) {
	key := pendingKey{deviceID: deviceID, requestID: requestID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[key]; exists {
		return nil, ErrDuplicateRequest
	}

	p := &Pending{
		key: key,
		ch:  make(chan result, 1),
	}
	t.pending[key] = p
	return p, nil
}

// Resolve delivers a reply payload to the waiter for (deviceID,
// requestID). Reports whether a waiter was found; a false return means
// the reply was late or unsolicited and has been dropped.
func (t *PendingTable) Resolve(deviceID, requestID string, payload any) bool {
	key := pendingKey{deviceID: deviceID, requestID: requestID}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[key]
	if !ok {
		return false
	}
	delete(t.pending, key)
	p.ch <- result{payload: payload}
	return true
}

// Remove discards a pending entry without resolving it. Used when the
// outbound request could not be sent, so no reply will ever arrive.
func (t *PendingTable) Remove(deviceID, requestID string) {
	key := pendingKey{deviceID: deviceID, requestID: requestID}

	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}

// CancelDevice fails every pending request for deviceID with
// ErrDeviceDisconnected. Called when the device's connection closes.
// Returns the number of requests cancelled.
func (t *PendingTable) CancelDevice(deviceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cancelled := 0
	for key, p := range t.pending {
		if key.deviceID != deviceID {
			continue
		}
		delete(t.pending, key)
		p.ch <- result{err: ErrDeviceDisconnected}
		cancelled++
	}
	return cancelled
}

// Await blocks until p is resolved, cancelled, or the timeout elapses.
// On timeout the entry is removed under the lock; if a resolver already
// removed it, the buffered result wins and is returned instead, so a
// reply that races the deadline is never both delivered and reported as
// a timeout.
func (t *PendingTable) Await(ctx context.Context, p *Pending, timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		return res.payload, res.err
	case <-timer.C:
		return t.expire(p, ErrRequestTimeout)
	case <-ctx.Done():
		return t.expire(p, ctx.Err())
	}
}

// expire removes p's entry if it is still pending. If a resolver got
// there first the result is already buffered and is returned instead of
// expireErr.
func (t *PendingTable) expire(p *Pending, expireErr error) (any, error) {
	t.mu.Lock()
	if current, ok := t.pending[p.key]; ok && current == p {
		delete(t.pending, p.key)
		t.mu.Unlock()
		return nil, expireErr
	}
	t.mu.Unlock()

	res := <-p.ch
	return res.payload, res.err
}

// Len returns the number of in-flight requests across all devices.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}
