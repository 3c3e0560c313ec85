package link

import "errors"

// Domain errors for the link package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, link.ErrNotLinked) {
//	    // handle unlinked user
//	}
var (
	// ErrLinkNotFound is returned when no row exists for a user or device.
	ErrLinkNotFound = errors.New("link: not found")

	// ErrCodeNotFound is returned when a pairing code matches no user.
	ErrCodeNotFound = errors.New("link: code not found")

	// ErrNotLinked is returned when an operation requires a bound device
	// but the user has none.
	ErrNotLinked = errors.New("link: no device linked")
)
