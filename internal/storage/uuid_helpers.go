package storage

import (
	"github.com/google/uuid"
)

// NewInstanceID generates a fresh identifier for one open database
// instance, used to tag the engine's log lines so that multiple engine
// instances in one process's logs can be told apart.
func NewInstanceID() uuid.UUID {
	return uuid.New()
}

// ParseUUID parses a UUID string into uuid.UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// UUIDToBytes returns the 16-byte representation of a uuid.UUID.
func UUIDToBytes(u uuid.UUID) []byte {
	return u[:]
}
