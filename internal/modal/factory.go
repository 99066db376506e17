package modal

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ahwlsqja/walletlogin/internal/login"
	"go.uber.org/zap"
)

// Presenter puts a modal on screen. Present must not block; the view
// drives the modal through Select and Cancel and stops when Done closes.
type Presenter interface {
	Present(ctx context.Context, m *Modal) error
}

// PresenterFunc adapts a function to Presenter
type PresenterFunc func(ctx context.Context, m *Modal) error

func (f PresenterFunc) Present(ctx context.Context, m *Modal) error { return f(ctx, m) }

// Factory opens modals for the login manager
type Factory struct {
	runner    Runner
	options   func() []WalletOption
	presenter Presenter
	logger    *zap.Logger
}

var _ login.ModalFactory = (*Factory)(nil)

var errNoWallets = stderrors.New("no wallets available for login")

// NewFactory creates a factory. options is consulted on every Open so
// connectors registered later are offered. presenter may be nil for a
// headless modal driven by the caller.
func NewFactory(runner Runner, options func() []WalletOption, presenter Presenter, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		runner:    runner,
		options:   options,
		presenter: presenter,
		logger:    logger,
	}
}

func (f *Factory) Open(ctx context.Context) (login.Modal, error) {
	opts := f.options()
	if len(opts) == 0 {
		return nil, errNoWallets
	}

	m := New(f.runner, opts, f.logger)
	if f.presenter != nil {
		if err := f.presenter.Present(ctx, m); err != nil {
			m.Cancel()
			return nil, fmt.Errorf("present login modal: %w", err)
		}
	}
	f.logger.Debug("login modal opened", zap.Int("options", len(opts)))
	return m, nil
}
