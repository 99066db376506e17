package login

import (
	"context"
	"math/big"

	"github.com/ahwlsqja/walletlogin/internal/walletconn"
)

// State of the login lifecycle
type State int

const (
	StateLoggedOut State = iota
	StateLoginPending
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateLoginPending:
		return "login-pending"
	case StateLoggedIn:
		return "logged-in"
	default:
		return "unknown"
	}
}

// Result is what a completed login modal resolves with
type Result struct {
	WalletID      string
	WalletAddress string
	Token         string
}

// Modal is one open login modal
type Modal interface {
	// WaitForLogin blocks until the user completes or cancels the modal.
	// When ctx is canceled the modal is removed and context.Cause(ctx) is
	// returned.
	WaitForLogin(ctx context.Context) (Result, error)
}

// ModalFactory opens login modals
type ModalFactory interface {
	Open(ctx context.Context) (Modal, error)
}

// ModalFactoryFunc adapts a function to ModalFactory
type ModalFactoryFunc func(ctx context.Context) (Modal, error)

func (f ModalFactoryFunc) Open(ctx context.Context) (Modal, error) { return f(ctx) }

// Prompt is a confirmation dialog shown to the user
type Prompt struct {
	Title        string
	Message      string
	ConfirmLabel string
}

// Prompter shows confirmation dialogs
type Prompter interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// WalletSession is the wallet collaborator the manager drives.
// *walletconn.SessionManager satisfies it.
type WalletSession interface {
	DisconnectAll(ctx context.Context) error
	SetConnectedWalletInfo(walletID, address string)
	// LiveAddress is the address the connected wallet signs for right now
	LiveAddress(ctx context.Context) (string, error)
	GetBalance(ctx context.Context, chainID int64, address string) (*big.Int, error)
	ReadContract(ctx context.Context, call walletconn.ContractCall) ([]any, error)
	EstimateGas(ctx context.Context, call walletconn.ContractCall) (uint64, error)
	WriteContract(ctx context.Context, call walletconn.ContractCall) ([]walletconn.DecodedEvent, error)
}

var _ WalletSession = (*walletconn.SessionManager)(nil)

// BackendLogout revokes a session token on the backend.
// *backend.Client satisfies it.
type BackendLogout interface {
	Logout(ctx context.Context, token string) error
}

// LoginStatusChanged is published when IsLoggedIn flips
type LoginStatusChanged struct {
	LoggedIn bool
	WalletID string
	Address  string
}

func loginRequiredPrompt() Prompt {
	return Prompt{
		Title:        "Login Required",
		Message:      "You need to log in with your wallet to execute this transaction. Would you like to log in now?",
		ConfirmLabel: "Log in",
	}
}

func walletMismatchPrompt(connected, required string) Prompt {
	return Prompt{
		Title: "Wallet Address Mismatch",
		Message: "Your current wallet address (" + connected + ") differs from the logged-in wallet address (" +
			required + "). Would you like to log in again with the correct wallet?",
		ConfirmLabel: "Log in Again",
	}
}
