package nonce

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTTL is the default nonce validity duration
	DefaultTTL = 5 * time.Minute
)

// Store defines the interface for login nonce storage.
// Each wallet address has at most one outstanding nonce.
type Store interface {
	// Issue creates a fresh nonce for address, replacing any outstanding one
	Issue(ctx context.Context, address string) (string, error)

	// Take returns the outstanding nonce for address and deletes it atomically.
	// Returns ErrNonceNotFound if none is outstanding or it expired.
	Take(ctx context.Context, address string) (string, error)
}

// Error definitions
var (
	ErrNonceNotFound = errors.New("nonce not found")
)
