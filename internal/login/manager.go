// Package login owns the wallet login lifecycle: it opens the login modal,
// commits the resulting session and gates state-changing chain calls on an
// address-matching login.
package login

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/session"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Deps are the manager's collaborators. Prompter and Backend may be nil.
type Deps struct {
	Store    session.Store
	Wallets  WalletSession
	Modals   ModalFactory
	Prompter Prompter
	Backend  BackendLogout
}

// Manager is the login state machine. It is safe for concurrent use; at
// most one login is pending at a time.
type Manager struct {
	store    session.Store
	wallets  WalletSession
	modals   ModalFactory
	prompter Prompter
	backend  BackendLogout
	logger   *zap.Logger
	events   *eventBus
	now      func() time.Time

	// transitionMu serializes state transitions with their store writes.
	// mu guards the fields below and is never held across I/O.
	transitionMu sync.Mutex
	mu           sync.Mutex
	current    *session.Session
	pending    context.CancelCauseFunc
	pendingSeq uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates a manager and restores any persisted login from the store
func New(ctx context.Context, deps Deps, logger *zap.Logger) (*Manager, error) {
	if deps.Store == nil || deps.Wallets == nil || deps.Modals == nil {
		return nil, stderrors.New("login: store, wallets and modals are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	m := &Manager{
		store:    deps.Store,
		wallets:  deps.Wallets,
		modals:   deps.Modals,
		prompter: deps.Prompter,
		backend:  deps.Backend,
		logger:   logger,
		events:   newEventBus(),
		now:      time.Now,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	stored, err := deps.Store.Load(ctx)
	switch {
	case err == nil:
		m.current = stored
		m.wallets.SetConnectedWalletInfo(stored.WalletID, stored.WalletAddress)
		logger.Info("restored wallet login",
			zap.String("wallet", stored.WalletID),
			zap.String("address", stored.WalletAddress),
		)
	case stderrors.Is(err, session.ErrNotFound):
	default:
		bgCancel()
		return nil, fmt.Errorf("load stored login: %w", err)
	}
	return m, nil
}

// Close cancels logins started from prompts and waits for them
func (m *Manager) Close() {
	m.bgCancel()
	m.bg.Wait()
}

// Wait blocks until logins started from prompts have finished
func (m *Manager) Wait() {
	m.bg.Wait()
}

// Subscribe registers fn for LoginStatusChanged. Events are delivered on
// the goroutine that made the transition, after the new state is committed.
func (m *Manager) Subscribe(fn func(LoginStatusChanged)) *Subscription {
	return m.events.add(fn)
}

// ============================================================================
// Queries
// ============================================================================

func (m *Manager) isLoggedInLocked() bool {
	return m.current.Complete()
}

// IsLoggedIn reports whether a token, wallet id and address are all held
func (m *Manager) IsLoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLoggedInLocked()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.pending != nil:
		return StateLoginPending
	case m.isLoggedInLocked():
		return StateLoggedIn
	default:
		return StateLoggedOut
	}
}

func (m *Manager) GetLoggedInWallet() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.WalletID
}

func (m *Manager) GetLoggedInAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.WalletAddress
}

// GetLoggedInUser is the logged-in address; wallets have no other identity
func (m *Manager) GetLoggedInUser() string {
	return m.GetLoggedInAddress()
}

// Token returns the session token for authenticating backend calls
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// ============================================================================
// Transitions
// ============================================================================

// Login tears down any existing session, opens the login modal and commits
// the session it resolves with. It returns the logged-in address.
func (m *Manager) Login(ctx context.Context) (string, error) {
	// 1. tear down (also cancels a pending login)
	if err := m.Logout(ctx); err != nil {
		m.logger.Warn("logout before login failed", zap.Error(err))
	}

	// 2. become the only pending login
	loginCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	m.transitionMu.Lock()
	m.mu.Lock()
	if m.pending != nil {
		m.pending(errors.ErrLoginCanceled)
	}
	m.pendingSeq++
	seq := m.pendingSeq
	m.pending = cancel
	m.mu.Unlock()
	m.transitionMu.Unlock()

	defer func() {
		m.transitionMu.Lock()
		m.mu.Lock()
		if m.pendingSeq == seq {
			m.pending = nil
		}
		m.mu.Unlock()
		m.transitionMu.Unlock()
	}()

	// 3. modal
	modal, err := m.modals.Open(loginCtx)
	if err != nil {
		return "", fmt.Errorf("open login modal: %w", err)
	}
	result, err := modal.WaitForLogin(loginCtx)
	if err != nil {
		m.logger.Info("login not completed", zap.Error(err))
		return "", err
	}

	// 4. commit
	record := &session.Session{
		WalletID:      result.WalletID,
		WalletAddress: result.WalletAddress,
		Token:         result.Token,
		LoggedInAt:    m.now().UTC(),
	}
	if !record.Complete() {
		return "", fmt.Errorf("login modal returned an incomplete result for wallet %q", result.WalletID)
	}

	ev, err := m.commit(ctx, seq, record)
	if err != nil {
		return "", err
	}
	if ev != nil {
		m.events.publish(*ev)
	}

	m.logger.Info("wallet logged in",
		zap.String("wallet", record.WalletID),
		zap.String("address", record.WalletAddress),
	)
	return record.WalletAddress, nil
}

// commit stores record if login seq is still the pending one and returns
// the event to publish, if the logged-in predicate flipped. The store write
// happens under transitionMu only, so getters are not blocked by it.
func (m *Manager) commit(ctx context.Context, seq uint64, record *session.Session) (*LoginStatusChanged, error) {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	stale := m.pendingSeq != seq || m.pending == nil
	m.mu.Unlock()
	if stale {
		return nil, errors.LoginCanceled()
	}

	m.wallets.SetConnectedWalletInfo(record.WalletID, record.WalletAddress)
	if err := m.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persist login: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.isLoggedInLocked()
	m.current = record
	m.pending = nil

	if before == m.isLoggedInLocked() {
		return nil, nil
	}
	return &LoginStatusChanged{
		LoggedIn: true,
		WalletID: record.WalletID,
		Address:  record.WalletAddress,
	}, nil
}

// Logout disconnects the wallet session, cancels a pending login, clears the
// stored session and revokes the token on the backend. Logging out while
// logged out only disconnects the wallet session. When the stored session
// cannot be cleared the login is kept, so memory and store stay in step and
// the token is not revoked.
func (m *Manager) Logout(ctx context.Context) error {
	// 1. wallet session
	if err := m.wallets.DisconnectAll(ctx); err != nil {
		m.logger.Warn("wallet disconnect failed", zap.Error(err))
	}

	// 2. local state
	m.transitionMu.Lock()
	m.mu.Lock()
	prev := m.current
	wasLoggedIn := m.isLoggedInLocked()
	if m.pending != nil {
		m.pending(errors.ErrLoginCanceled)
		m.pending = nil
		m.pendingSeq++
	}
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		if prev != nil {
			m.wallets.SetConnectedWalletInfo(prev.WalletID, prev.WalletAddress)
		}
		m.transitionMu.Unlock()
		m.logger.Error("failed to clear stored login", zap.Error(err))
		return fmt.Errorf("clear stored login: %w", err)
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.transitionMu.Unlock()

	if !wasLoggedIn {
		return nil
	}

	// 3. backend; failure leaves the token to expire on its own
	if m.backend != nil {
		if err := m.backend.Logout(ctx, prev.Token); err != nil {
			m.logger.Warn("backend logout failed", zap.String("address", prev.WalletAddress), zap.Error(err))
		}
	}

	m.events.publish(LoginStatusChanged{LoggedIn: false, WalletID: prev.WalletID, Address: prev.WalletAddress})
	m.logger.Info("wallet logged out", zap.String("address", prev.WalletAddress))
	return nil
}

// ============================================================================
// Chain operations
// ============================================================================

// GetBalance returns the logged-in address's balance on chainID
func (m *Manager) GetBalance(ctx context.Context, chainID int64) (*big.Int, error) {
	address := m.GetLoggedInAddress()
	if address == "" {
		return nil, errors.NotLoggedIn()
	}
	return m.wallets.GetBalance(ctx, chainID, address)
}

func (m *Manager) ReadContract(ctx context.Context, call walletconn.ContractCall) ([]any, error) {
	return m.wallets.ReadContract(ctx, call)
}

func (m *Manager) EstimateGas(ctx context.Context, call walletconn.ContractCall) (uint64, error) {
	return m.wallets.EstimateGas(ctx, call)
}

// WriteContract runs a state-changing call for the logged-in wallet. When
// not logged in, or when the wallet signs for a different address, it
// offers a new login in the background and fails; the caller must retry
// after logging in.
func (m *Manager) WriteContract(ctx context.Context, call walletconn.ContractCall) ([]walletconn.DecodedEvent, error) {
	m.mu.Lock()
	var walletID, address string
	if m.current != nil {
		walletID, address = m.current.WalletID, m.current.WalletAddress
	}
	m.mu.Unlock()

	// 1. login required
	if walletID == "" || address == "" {
		m.offerLogin(loginRequiredPrompt())
		return nil, errors.NotLoggedIn()
	}

	// 2. the wallet must still sign for the logged-in address
	live, err := m.wallets.LiveAddress(ctx)
	if err != nil {
		return nil, m.checkMismatch(err, address)
	}
	if !sameAddress(live, address) {
		m.offerLogin(walletMismatchPrompt(live, address))
		return nil, errors.WalletAddressMismatch(live, address)
	}

	// 3. delegate; the wallet can still switch accounts before signing
	events, err := m.wallets.WriteContract(ctx, call)
	if err != nil {
		return nil, m.checkMismatch(err, address)
	}
	return events, nil
}

// checkMismatch offers a new login when err is a wallet address mismatch
// and returns err unchanged
func (m *Manager) checkMismatch(err error, loggedIn string) error {
	if !stderrors.Is(err, errors.ErrWalletAddressMismatch) {
		return err
	}
	connected := ""
	if appErr, ok := errors.AsAppError(err); ok {
		connected, _ = appErr.Details["connected"].(string)
	}
	m.offerLogin(walletMismatchPrompt(connected, loggedIn))
	return err
}

// offerLogin shows p and starts a login if the user confirms
func (m *Manager) offerLogin(p Prompt) {
	if m.prompter == nil {
		return
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		ok, err := m.prompter.Confirm(m.bgCtx, p)
		if err != nil {
			m.logger.Warn("login prompt failed", zap.String("title", p.Title), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if _, err := m.Login(m.bgCtx); err != nil {
			m.logger.Info("login from prompt not completed", zap.Error(err))
		}
	}()
}

func sameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}
