package attendance

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// TokenSource produces the opaque, unguessable session tokens encoded
// into the QR code. Uniqueness across all sessions ever created is
// enforced by the store; the source only has to make collisions
// practically impossible.
type TokenSource interface {
	NewToken() string
}

// RandomTokenSource concatenates a UUID with extra random bytes so a
// leaked token reveals nothing about other sessions.
type RandomTokenSource struct{}

// NewToken returns a fresh token.
func (RandomTokenSource) NewToken() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken;
		// the UUID alone still satisfies uniqueness.
		return uuid.NewString()
	}
	return uuid.NewString() + "-" + hex.EncodeToString(buf)
}
