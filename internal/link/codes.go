package link

import (
	"fmt"
	"math/rand"
)

// Pairing code bounds: 6-digit decimal, no leading zero.
const (
	codeMin = 100000
	codeMax = 999999
)

// NewPairingCode returns a random 6-digit decimal pairing code.
//
// Known gap: a code is only superseded when the user generates a new one;
// it is not invalidated after a successful pairing, so a second device
// presenting the same code before regeneration re-binds the same user.
func NewPairingCode() string {
	return fmt.Sprintf("%d", codeMin+rand.Intn(codeMax-codeMin+1))
}
