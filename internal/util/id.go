package util

import "github.com/google/uuid"

// NewID returns a random identifier for request and instance tagging.
func NewID() string {
	return uuid.NewString()
}
