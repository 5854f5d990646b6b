package internal

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a random (version 4) UUID drawn from r.
func NewSessionID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseSessionID reports whether s is a well-formed session identifier.
func ParseSessionID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// EventIDs issues ULIDs for security events. IDs minted within the same
// millisecond increase monotonically, so lexical order is creation order.
type EventIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewEventIDs returns an EventIDs drawing entropy from r.
func NewEventIDs(r io.Reader) *EventIDs {
	if r == nil {
		r = rand.Reader
	}
	return &EventIDs{entropy: ulid.Monotonic(r, 0)}
}

// New returns a ULID stamped with now.
func (g *EventIDs) New(now time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
