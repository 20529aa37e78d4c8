package crypto

import "github.com/google/uuid"

// GenerateNodeID returns a fresh opaque node identifier. Used when the
// configuration does not pin one.
func GenerateNodeID() string {
	return uuid.NewString()
}
