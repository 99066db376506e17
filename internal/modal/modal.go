// Package modal is the headless login modal: one action per wallet, hidden
// while a login flow runs, restored with the error when it fails.
package modal

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
	"go.uber.org/zap"
)

// State of a modal
type State int

const (
	StateOpen State = iota
	StateHidden
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHidden:
		return "hidden"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

const (
	Title              = "Login with Crypto Wallet"
	SectionRecommended = "WalletConnect - Recommended"
	SectionDirect      = "Direct Login"
	DirectLoginNote    = "These options are available when WalletConnect is not working properly. " +
		"Direct login requires re-authentication each time you start the app, which may be less convenient compared to WalletConnect."
)

var (
	// ErrBusy is returned by Select while a flow is already running
	ErrBusy = stderrors.New("modal: login in progress")
	// ErrRemoved is returned by Select after the modal is gone
	ErrRemoved = stderrors.New("modal: removed")
)

// WalletOption is one login action
type WalletOption struct {
	ID      string
	Title   string
	Section string
}

// OptionsFor builds one option per connector. WalletConnect goes in the
// recommended section, the rest under direct login.
func OptionsFor(connectors []walletconn.Connector) []WalletOption {
	var recommended, direct []WalletOption
	for _, c := range connectors {
		opt := WalletOption{ID: c.ID(), Title: "Login with " + c.Name()}
		if c.ID() == walletconn.WalletConnectID {
			opt.Section = SectionRecommended
			recommended = append(recommended, opt)
			continue
		}
		opt.Section = SectionDirect
		direct = append(direct, opt)
	}
	return append(recommended, direct...)
}

// Runner runs the login flow for a wallet. *loginflow.Flow satisfies it.
type Runner interface {
	Run(ctx context.Context, walletID string) (login.Result, error)
}

// Modal is one open login modal
type Modal struct {
	runner  Runner
	options []WalletOption
	logger  *zap.Logger

	mu        sync.Mutex
	state     State
	lastErr   error
	running   string
	cancelRun context.CancelCauseFunc

	done   chan struct{}
	once   sync.Once
	result login.Result
	err    error
}

var _ login.Modal = (*Modal)(nil)

// New creates an open modal offering options
func New(runner Runner, options []WalletOption, logger *zap.Logger) *Modal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Modal{
		runner:  runner,
		options: append([]WalletOption(nil), options...),
		logger:  logger,
		state:   StateOpen,
		done:    make(chan struct{}),
	}
}

func (m *Modal) Options() []WalletOption {
	return append([]WalletOption(nil), m.options...)
}

func (m *Modal) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError is the error of the most recent failed flow, nil after a new
// selection starts
func (m *Modal) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Running is the wallet whose flow is in progress, if any
func (m *Modal) Running() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Done is closed once the modal is removed
func (m *Modal) Done() <-chan struct{} {
	return m.done
}

func (m *Modal) hasOption(id string) bool {
	for _, o := range m.options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Select runs the login flow for walletID. The modal is hidden while the
// flow runs. On success the pending wait resolves and the modal is removed;
// on failure the modal reopens with LastError set so another wallet can be
// tried.
func (m *Modal) Select(ctx context.Context, walletID string) error {
	// 1. Open -> Hidden
	m.mu.Lock()
	switch {
	case m.state == StateRemoved:
		m.mu.Unlock()
		return ErrRemoved
	case m.state == StateHidden:
		m.mu.Unlock()
		return ErrBusy
	case !m.hasOption(walletID):
		m.mu.Unlock()
		return errors.UnknownWallet(walletID)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	m.state = StateHidden
	m.lastErr = nil
	m.running = walletID
	m.cancelRun = cancel
	m.mu.Unlock()

	// 2. Flow
	result, err := m.runner.Run(runCtx, walletID)

	// 3. Resolve or restore
	m.mu.Lock()
	m.running = ""
	m.cancelRun = nil
	if m.state == StateRemoved {
		m.mu.Unlock()
		return errors.LoginCanceled()
	}
	if err != nil {
		m.state = StateOpen
		m.lastErr = err
		m.mu.Unlock()
		m.logger.Warn("wallet login failed", zap.String("wallet", walletID), zap.Error(err))
		return err
	}
	m.state = StateRemoved
	m.mu.Unlock()

	m.finish(result, nil)
	return nil
}

// Cancel removes the modal and rejects the pending wait with
// ErrLoginCanceled. A running flow is canceled.
func (m *Modal) Cancel() {
	m.remove(errors.LoginCanceled())
}

func (m *Modal) remove(cause error) {
	m.mu.Lock()
	if m.state == StateRemoved {
		m.mu.Unlock()
		return
	}
	m.state = StateRemoved
	if m.cancelRun != nil {
		m.cancelRun(cause)
	}
	m.mu.Unlock()

	m.finish(login.Result{}, cause)
}

func (m *Modal) finish(result login.Result, err error) {
	m.once.Do(func() {
		m.result, m.err = result, err
		close(m.done)
	})
}

// WaitForLogin blocks until the modal resolves. Canceling ctx removes the
// modal and returns context.Cause(ctx).
func (m *Modal) WaitForLogin(ctx context.Context) (login.Result, error) {
	select {
	case <-m.done:
	case <-ctx.Done():
		m.remove(context.Cause(ctx))
		<-m.done
	}
	return m.result, m.err
}
