package app

import "errors"

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrNotOwner          = errors.New("challenge belongs to another user")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrImageMissing      = errors.New("imageUrl required")
)
