package notify

import "github.com/google/uuid"

// IDGenerator produces identifiers for locally created notifications.
type IDGenerator func() string

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}
