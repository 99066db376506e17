// Package walletconn connects wallets and runs chain calls on behalf of the
// connected one.
package walletconn

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Wallet identifiers offered by the login modal
const (
	WalletConnectID  = "walletconnect"
	MetaMaskID       = "metamask"
	CoinbaseWalletID = "coinbase-wallet"
	KeystoreID       = "keystore"
	DevKeyID         = "dev-key"
)

// Account is one address a wallet exposes
type Account struct {
	Address common.Address
}

// Signer signs on behalf of one account
type Signer interface {
	Address() common.Address
	// SignMessage returns an EIP-191 personal_sign signature, V in {27, 28}
	SignMessage(ctx context.Context, message string) ([]byte, error)
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Provider is a live connection to a wallet
type Provider interface {
	Accounts(ctx context.Context) ([]Account, error)
	// Signer returns a signer for the wallet's primary account
	Signer(ctx context.Context) (Signer, error)
}

// Connector opens connections to one kind of wallet
type Connector interface {
	ID() string
	Name() string
	Connect(ctx context.Context) (Provider, error)
	// Disconnect closes any open connection. It is a no-op when nothing is
	// connected.
	Disconnect(ctx context.Context) error
}
