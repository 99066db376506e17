package walletconn

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeyConnector signs with a raw private key held in memory.
// Meant for development chains (DEV_PRIVATE_KEY).
type PrivateKeyConnector struct {
	id   string
	name string
	key  *ecdsa.PrivateKey
}

var _ Connector = (*PrivateKeyConnector)(nil)

// NewPrivateKeyConnector parses a hex private key, with or without 0x
func NewPrivateKeyConnector(id, name, hexKey string) (*PrivateKeyConnector, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeyConnector(id, name, key), nil
}

// NewKeyConnector wraps an already parsed key
func NewKeyConnector(id, name string, key *ecdsa.PrivateKey) *PrivateKeyConnector {
	return &PrivateKeyConnector{id: id, name: name, key: key}
}

func (c *PrivateKeyConnector) ID() string   { return c.id }
func (c *PrivateKeyConnector) Name() string { return c.name }

func (c *PrivateKeyConnector) Connect(_ context.Context) (Provider, error) {
	return &keySigner{key: c.key, address: crypto.PubkeyToAddress(c.key.PublicKey)}, nil
}

func (c *PrivateKeyConnector) Disconnect(_ context.Context) error {
	return nil
}

// keySigner is both the provider and the signer for a single key
type keySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func (s *keySigner) Accounts(_ context.Context) ([]Account, error) {
	return []Account{{Address: s.address}}, nil
}

func (s *keySigner) Signer(_ context.Context) (Signer, error) {
	return s, nil
}

func (s *keySigner) Address() common.Address {
	return s.address
}

func (s *keySigner) SignMessage(_ context.Context, message string) ([]byte, error) {
	return sigverify.SignPersonal(s.key, message)
}

func (s *keySigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
