package walletconn

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var errEmptyKeystore = errors.New("keystore has no accounts")

// KeystoreConnector signs with encrypted key files from a go-ethereum
// keystore directory. The first account is the primary one.
type KeystoreConnector struct {
	ks         *keystore.KeyStore
	passphrase string
	logger     *zap.Logger
}

var _ Connector = (*KeystoreConnector)(nil)

func NewKeystoreConnector(dir, passphrase string, logger *zap.Logger) *KeystoreConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeystoreConnector{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
		logger:     logger,
	}
}

func (c *KeystoreConnector) ID() string   { return KeystoreID }
func (c *KeystoreConnector) Name() string { return "Local Keystore" }

func (c *KeystoreConnector) Connect(_ context.Context) (Provider, error) {
	c.logger.Debug("keystore connected", zap.Int("accounts", len(c.ks.Accounts())))
	return &keystoreProvider{connector: c}, nil
}

func (c *KeystoreConnector) Disconnect(_ context.Context) error {
	return nil
}

type keystoreProvider struct {
	connector *KeystoreConnector
}

func (p *keystoreProvider) Accounts(_ context.Context) ([]Account, error) {
	list := p.connector.ks.Accounts()
	out := make([]Account, 0, len(list))
	for _, a := range list {
		out = append(out, Account{Address: a.Address})
	}
	return out, nil
}

func (p *keystoreProvider) Signer(_ context.Context) (Signer, error) {
	list := p.connector.ks.Accounts()
	if len(list) == 0 {
		return nil, errEmptyKeystore
	}
	return &keystoreSigner{connector: p.connector, account: list[0]}, nil
}

type keystoreSigner struct {
	connector *KeystoreConnector
	account   accounts.Account
}

func (s *keystoreSigner) Address() common.Address {
	return s.account.Address
}

func (s *keystoreSigner) SignMessage(_ context.Context, message string) ([]byte, error) {
	sig, err := s.connector.ks.SignHashWithPassphrase(s.account, s.connector.passphrase, accounts.TextHash([]byte(message)))
	if err != nil {
		return nil, fmt.Errorf("keystore sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *keystoreSigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := s.connector.ks.SignTxWithPassphrase(s.account, s.connector.passphrase, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("keystore sign transaction: %w", err)
	}
	return signed, nil
}
