// Package loginflow runs the wallet sign-in sequence behind the login modal.
package loginflow

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Wallets opens wallet connections by wallet id.
// *walletconn.SessionManager satisfies it.
type Wallets interface {
	Connect(ctx context.Context, walletID string) (walletconn.Provider, error)
	Disconnect(ctx context.Context, walletID string) error
}

var _ Wallets = (*walletconn.SessionManager)(nil)

// Backend issues nonces and exchanges signatures for tokens.
// *backend.Client satisfies it.
type Backend interface {
	NewNonce(ctx context.Context, walletAddress string) (string, error)
	SignIn(ctx context.Context, walletAddress, signedMessage string) (string, error)
}

// Confirmer blocks on a yes/no dialog. login.Prompter implementations can
// be used directly.
type Confirmer interface {
	Confirm(ctx context.Context, p login.Prompt) (bool, error)
}

// Step names used in errors and logs
const (
	StepDisconnect = "disconnect"
	StepConnect    = "connect"
	StepAccounts   = "accounts"
	StepNonce      = "nonce"
	StepConfirm    = "confirm"
	StepSign       = "sign"
	StepSignIn     = "sign-in"
)

// StepError reports which step of the flow failed
type StepError struct {
	Step     string
	WalletID string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("wallet login (%s) failed at %s: %v", e.WalletID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Flow is the login sequence for one wallet. It persists nothing; the
// caller commits the Result.
type Flow struct {
	wallets   Wallets
	backend   Backend
	confirmer Confirmer
	statement string
	logger    *zap.Logger
}

// New creates a flow. statement precedes the nonce in the signed message.
func New(wallets Wallets, backend Backend, confirmer Confirmer, statement string, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		wallets:   wallets,
		backend:   backend,
		confirmer: confirmer,
		statement: statement,
		logger:    logger,
	}
}

// SignMessagePrompt is shown before the wallet is asked to sign
func SignMessagePrompt() login.Prompt {
	return login.Prompt{
		Title:        "Sign Message",
		Message:      "To complete the login process, please sign the message in your wallet. This signature verifies your ownership of the wallet address.",
		ConfirmLabel: "Sign Message",
	}
}

// Run logs in with walletID and returns the session it obtained
func (f *Flow) Run(ctx context.Context, walletID string) (login.Result, error) {
	log := f.logger.With(zap.String("wallet", walletID))

	fail := func(step string, err error) (login.Result, error) {
		log.Warn("wallet login step failed", zap.String("step", step), zap.Error(err))
		return login.Result{}, &StepError{Step: step, WalletID: walletID, Err: err}
	}

	// 1. Drop any stale connection
	if err := f.wallets.Disconnect(ctx, walletID); err != nil {
		if stderrors.Is(err, errors.ErrUnknownWallet) {
			return fail(StepDisconnect, err)
		}
		log.Debug("stale connection not closed", zap.Error(err))
	}

	// 2. Connect and pick the first account
	provider, err := f.wallets.Connect(ctx, walletID)
	if err != nil {
		return fail(StepConnect, err)
	}

	accounts, err := provider.Accounts(ctx)
	if err != nil {
		return fail(StepAccounts, err)
	}
	if len(accounts) == 0 {
		return fail(StepAccounts, errors.NoAccountsFound())
	}
	address := accounts[0].Address.Hex()
	log = log.With(zap.String("address", address))

	// 3. Nonce
	nonce, err := f.backend.NewNonce(ctx, address)
	if err != nil {
		return fail(StepNonce, err)
	}

	// 4. Ask before the wallet pops up
	if f.confirmer != nil {
		ok, err := f.confirmer.Confirm(ctx, SignMessagePrompt())
		if err != nil {
			return fail(StepConfirm, err)
		}
		if !ok {
			return fail(StepConfirm, errors.SignatureDeclined())
		}
	}

	// 5. Sign statement + nonce
	signer, err := provider.Signer(ctx)
	if err != nil {
		return fail(StepSign, err)
	}
	signature, err := signer.SignMessage(ctx, sigverify.LoginMessage(f.statement, nonce))
	if err != nil {
		return fail(StepSign, err)
	}

	// 6. Exchange for a token
	token, err := f.backend.SignIn(ctx, address, hexutil.Encode(signature))
	if err != nil {
		return fail(StepSignIn, err)
	}

	log.Info("wallet login flow completed")
	return login.Result{
		WalletID:      walletID,
		WalletAddress: address,
		Token:         token,
	}, nil
}
