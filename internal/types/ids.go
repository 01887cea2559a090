package types

import (
	"github.com/google/uuid"
)

// ConnID identifies one client connection (WebSocket or gRPC stream).
// UUIDv7 keeps connection ids time-ordered in logs.
type ConnID string

// NewConnID generates a UUIDv7 connection identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewConnID() ConnID {
	return ConnID(uuid.Must(uuid.NewV7()).String())
}

// ParseConnID validates and converts a string to ConnID.
func ParseConnID(s string) (ConnID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ConnID(s), nil
}

// SessionToken derives the 32-bit session id sent in the HELLO response.
// It is the low 32 bits of the connection UUID's random tail.
func (c ConnID) SessionToken() uint32 {
	u, err := uuid.Parse(string(c))
	if err != nil {
		return 0
	}
	return uint32(u[12])<<24 | uint32(u[13])<<16 | uint32(u[14])<<8 | uint32(u[15])
}
