package xid

import "github.com/google/uuid"

// New returns a random (v4) UUID string used as an entity id.
func New() string {
	return uuid.NewString()
}
