package walletconn

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	defaultTxTimeout    = 2 * time.Minute
	defaultPollInterval = time.Second
)

// ConnectedWallet is the wallet/address pair the session currently acts for
type ConnectedWallet struct {
	WalletID string
	Address  common.Address
}

type SessionConfig struct {
	// Chains maps chain id to an RPC client
	Chains map[int64]ChainClient
	// TxTimeout bounds the wait for a transaction receipt
	TxTimeout time.Duration
	// PollInterval is the receipt polling period
	PollInterval time.Duration
}

// SessionManager owns wallet connectors, the open connections and the
// connected wallet info, and runs chain calls for the connected wallet.
type SessionManager struct {
	cfg    SessionConfig
	logger *zap.Logger

	mu         sync.Mutex
	connectors map[string]Connector
	order      []string
	providers  map[string]Provider
	connected  *ConnectedWallet
}

func NewSessionManager(cfg SessionConfig, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Chains == nil {
		cfg.Chains = map[int64]ChainClient{}
	}
	return &SessionManager{
		cfg:        cfg,
		logger:     logger,
		connectors: make(map[string]Connector),
		providers:  make(map[string]Provider),
	}
}

// Register adds connectors. A later connector replaces an earlier one with
// the same ID.
func (m *SessionManager) Register(connectors ...Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range connectors {
		if _, ok := m.connectors[c.ID()]; !ok {
			m.order = append(m.order, c.ID())
		}
		m.connectors[c.ID()] = c
	}
}

// Connectors lists registered connectors in registration order
func (m *SessionManager) Connectors() []Connector {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Connector, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.connectors[id])
	}
	return out
}

func (m *SessionManager) connector(id string) (Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connectors[id]
	if !ok {
		return nil, errors.UnknownWallet(id)
	}
	return c, nil
}

// Connect opens a connection to the wallet registered under id
func (m *SessionManager) Connect(ctx context.Context, id string) (Provider, error) {
	c, err := m.connector(id)
	if err != nil {
		return nil, err
	}

	provider, err := c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", id, err)
	}

	m.mu.Lock()
	m.providers[id] = provider
	m.mu.Unlock()

	m.logger.Info("wallet connected", zap.String("wallet", id))
	return provider, nil
}

// Disconnect closes the connection to one wallet. The connected wallet info
// is cleared when it refers to that wallet.
func (m *SessionManager) Disconnect(ctx context.Context, id string) error {
	c, err := m.connector(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.providers, id)
	if m.connected != nil && m.connected.WalletID == id {
		m.connected = nil
	}
	m.mu.Unlock()

	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return nil
}

// DisconnectAll closes every connection and clears the connected wallet
// info. Every connector is attempted; the errors are joined.
func (m *SessionManager) DisconnectAll(ctx context.Context) error {
	m.mu.Lock()
	connectors := make([]Connector, 0, len(m.connectors))
	for _, id := range m.order {
		connectors = append(connectors, m.connectors[id])
	}
	m.providers = make(map[string]Provider)
	m.connected = nil
	m.mu.Unlock()

	var errs []error
	for _, c := range connectors {
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", c.ID(), err))
		}
	}
	return stderrors.Join(errs...)
}

// SetConnectedWalletInfo records which wallet and address the session acts for
func (m *SessionManager) SetConnectedWalletInfo(walletID string, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = &ConnectedWallet{
		WalletID: walletID,
		Address:  common.HexToAddress(address),
	}
}

// ConnectedWallet returns the connected wallet info, if any
func (m *SessionManager) ConnectedWallet() (ConnectedWallet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected == nil {
		return ConnectedWallet{}, false
	}
	return *m.connected, true
}

// GetConnectedAddress returns the connected address in checksum form, or ""
func (m *SessionManager) GetConnectedAddress() string {
	w, ok := m.ConnectedWallet()
	if !ok {
		return ""
	}
	return w.Address.Hex()
}

// ChainIDs lists configured chains in ascending order
func (m *SessionManager) ChainIDs() []int64 {
	ids := make([]int64, 0, len(m.cfg.Chains))
	for id := range m.cfg.Chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// liveSigner returns a signer for the connected wallet, reconnecting when
// the session was restored without a live connection
func (m *SessionManager) liveSigner(ctx context.Context) (Signer, ConnectedWallet, error) {
	w, ok := m.ConnectedWallet()
	if !ok {
		return nil, ConnectedWallet{}, errors.NotLoggedIn()
	}

	m.mu.Lock()
	provider := m.providers[w.WalletID]
	m.mu.Unlock()

	if provider == nil {
		p, err := m.Connect(ctx, w.WalletID)
		if err != nil {
			return nil, w, err
		}
		provider = p
	}

	s, err := provider.Signer(ctx)
	if err != nil {
		return nil, w, fmt.Errorf("%s signer: %w", w.WalletID, err)
	}
	return s, w, nil
}

// LiveAddress is the address the connected wallet actually signs for. It
// may differ from the recorded connected address when the wallet switched
// accounts or re-paired with another one.
func (m *SessionManager) LiveAddress(ctx context.Context) (string, error) {
	s, _, err := m.liveSigner(ctx)
	if err != nil {
		return "", err
	}
	return s.Address().Hex(), nil
}

// signer is liveSigner restricted to the recorded connected address
func (m *SessionManager) signer(ctx context.Context) (Signer, error) {
	s, w, err := m.liveSigner(ctx)
	if err != nil {
		return nil, err
	}
	if s.Address() != w.Address {
		return nil, errors.WalletAddressMismatch(s.Address().Hex(), w.Address.Hex())
	}
	return s, nil
}
