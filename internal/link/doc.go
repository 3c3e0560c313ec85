// Package link is the pairing store: the durable mapping between a chat
// user, their one-time pairing code, and the device currently bound to
// them.
//
// A user has at most one device. Pairing codes are short numeric secrets
// generated on user request and exchanged by a device for a binding; the
// binding is cleared on explicit unlink (user command or device request).
//
// The Repository interface is the storage contract; SQLiteRepository is
// the production implementation over the links table.
package link
