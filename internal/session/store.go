// Package session persists the client's login record.
//
// The wallet id, wallet address and token are always written and removed as
// one record so a crash can never leave a partially committed login behind.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no login record is stored
var ErrNotFound = errors.New("session: no stored login")

// Session is the persisted login record
type Session struct {
	WalletID      string    `json:"loggedInWallet"`
	WalletAddress string    `json:"loggedInAddress"`
	Token         string    `json:"token"`
	LoggedInAt    time.Time `json:"loggedInAt"`
}

// Complete reports whether all three login fields are present
func (s *Session) Complete() bool {
	return s != nil && s.WalletID != "" && s.WalletAddress != "" && s.Token != ""
}

// Store is a durable key-value slot holding at most one Session.
// Implementations must survive process restarts (except MemoryStore).
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	// Clear removes the record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

var errIncomplete = errors.New("session: refusing to save incomplete login record")
