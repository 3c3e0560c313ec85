package link

import "time"

// Link is one pairing-store row: a chat user, their current pairing code,
// and the device bound to them (if any).
//
// Code, DeviceID and DeviceName are pointers because each is independently
// absent: a fresh row has a code but no device, an unlinked row may keep a
// stale code, and a device may not report a name.
type Link struct {
	// UserID is the chat-platform user identifier (primary key).
	UserID string

	// Code is the current pairing code, nil if never generated.
	// A code stays valid until the user generates a new one; it is not
	// cleared on successful pairing (see NewPairingCode).
	Code *string

	// DeviceID identifies the bound device, nil when unlinked.
	DeviceID *string

	// DeviceName is the human-readable name the device reported,
	// nil when the device never sent one.
	DeviceName *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked reports whether a device is currently bound to this user.
func (l *Link) Linked() bool {
	return l.DeviceID != nil && *l.DeviceID != ""
}
