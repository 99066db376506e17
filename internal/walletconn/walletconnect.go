package walletconn

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/walletconn/walletconnect"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// WalletConnectConfig configures one WalletConnect-backed wallet entry.
// MetaMask and Coinbase Wallet mobile pair through the same bridge, so they
// are separate entries with their own ID and Name.
type WalletConnectConfig struct {
	ID          string
	Name        string
	BridgeURL   string
	ReadTimeout time.Duration
	ChainID     int64
	Meta        walletconnect.ClientMeta
}

// WalletConnectConnector pairs with a mobile wallet over a v1 bridge
type WalletConnectConnector struct {
	cfg    WalletConnectConfig
	logger *zap.Logger

	mu      sync.Mutex
	client  *walletconnect.Client
	display walletconnect.DisplayFn
}

var _ Connector = (*WalletConnectConnector)(nil)

func NewWalletConnectConnector(cfg WalletConnectConfig, logger *zap.Logger) *WalletConnectConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletConnectConnector{
		cfg:    cfg,
		logger: logger.With(zap.String("wallet", cfg.ID)),
	}
}

// SetDisplay sets how the pairing QR code is shown to the user
func (c *WalletConnectConnector) SetDisplay(fn walletconnect.DisplayFn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.display = fn
}

func (c *WalletConnectConnector) ID() string   { return c.cfg.ID }
func (c *WalletConnectConnector) Name() string { return c.cfg.Name }

// Connect starts a fresh pairing, closing any previous one
func (c *WalletConnectConnector) Connect(ctx context.Context) (Provider, error) {
	if err := c.Disconnect(ctx); err != nil {
		c.logger.Warn("closing previous walletconnect session failed", zap.Error(err))
	}

	client, err := walletconnect.NewClient(walletconnect.Config{
		BridgeURL:   c.cfg.BridgeURL,
		ReadTimeout: c.cfg.ReadTimeout,
		Meta:        c.cfg.Meta,
		ChainID:     c.cfg.ChainID,
	}, c.logger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	display := c.display
	c.client = client
	c.mu.Unlock()

	session, err := client.Connect(ctx, display)
	if err != nil {
		c.mu.Lock()
		if c.client == client {
			c.client = nil
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("walletconnect pairing: %w", err)
	}

	accounts := make([]Account, 0, len(session.Accounts))
	for _, a := range session.Accounts {
		if !common.IsHexAddress(a) {
			continue
		}
		accounts = append(accounts, Account{Address: common.HexToAddress(a)})
	}
	return &wcProvider{client: client, accounts: accounts}, nil
}

func (c *WalletConnectConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

type wcProvider struct {
	client   *walletconnect.Client
	accounts []Account
}

func (p *wcProvider) Accounts(_ context.Context) ([]Account, error) {
	return append([]Account(nil), p.accounts...), nil
}

func (p *wcProvider) Signer(_ context.Context) (Signer, error) {
	if len(p.accounts) == 0 {
		return nil, fmt.Errorf("walletconnect session has no accounts")
	}
	return &wcSigner{client: p.client, address: p.accounts[0].Address}, nil
}

type wcSigner struct {
	client  *walletconnect.Client
	address common.Address
}

func (s *wcSigner) Address() common.Address {
	return s.address
}

func (s *wcSigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	return s.client.PersonalSign(ctx, s.address.Hex(), message)
}

func (s *wcSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	req := walletconnect.TxRequest{
		From:                 s.address.Hex(),
		Data:                 hexutil.Encode(tx.Data()),
		Gas:                  hexutil.EncodeUint64(tx.Gas()),
		MaxFeePerGas:         hexutil.EncodeBig(tx.GasFeeCap()),
		MaxPriorityFeePerGas: hexutil.EncodeBig(tx.GasTipCap()),
		Value:                hexutil.EncodeBig(tx.Value()),
		Nonce:                hexutil.EncodeUint64(tx.Nonce()),
		ChainID:              hexutil.EncodeBig(chainID),
	}
	if to := tx.To(); to != nil {
		req.To = to.Hex()
	}

	raw, err := s.client.SignTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		return nil, fmt.Errorf("recover transaction sender: %w", err)
	}
	if sender != s.address {
		return nil, fmt.Errorf("wallet signed as %s, expected %s", sender.Hex(), s.address.Hex())
	}
	return signed, nil
}
