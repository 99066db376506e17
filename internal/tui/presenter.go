// Package tui puts the login modal and its dialogs on the terminal.
package tui

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/ahwlsqja/walletlogin/internal/modal"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

var errNoModal = stderrors.New("tui: no login modal on screen")

// Presenter runs one bubbletea program per login modal. While a modal is
// on screen, the flow's confirmations and the WalletConnect pairing code
// are routed into it; otherwise confirmations fall back to the prompter.
type Presenter struct {
	prompter *Prompter
	opts     []tea.ProgramOption
	logger   *zap.Logger

	mu      sync.Mutex
	program *tea.Program
	exited  chan struct{}
}

var (
	_ modal.Presenter = (*Presenter)(nil)
	_ login.Prompter  = (*Presenter)(nil)
)

// NewPresenter creates a presenter. opts are passed to every program, e.g.
// tea.WithInput and tea.WithOutput.
func NewPresenter(prompter *Prompter, logger *zap.Logger, opts ...tea.ProgramOption) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{
		prompter: prompter,
		opts:     opts,
		logger:   logger,
	}
}

// Present starts the modal's program in the background. It waits for the
// previous modal's program to release the terminal first.
func (p *Presenter) Present(ctx context.Context, m *modal.Modal) error {
	p.mu.Lock()
	prev := p.exited
	p.mu.Unlock()
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	program := tea.NewProgram(newLoginModel(ctx, m), p.opts...)
	exited := make(chan struct{})

	p.mu.Lock()
	p.program, p.exited = program, exited
	p.mu.Unlock()

	go func() {
		defer close(exited)
		if _, err := program.Run(); err != nil {
			p.logger.Error("login modal stopped", zap.Error(err))
			// a modal nobody can see must not keep the login pending
			m.Cancel()
		}

		p.mu.Lock()
		if p.program == program {
			p.program = nil
		}
		p.mu.Unlock()
	}()
	return nil
}

func (p *Presenter) current() (*tea.Program, chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.program, p.exited
}

// Confirm asks inside the modal when one is on screen
func (p *Presenter) Confirm(ctx context.Context, prompt login.Prompt) (bool, error) {
	program, exited := p.current()
	if program == nil {
		if p.prompter == nil {
			return false, errNoModal
		}
		return p.prompter.Confirm(ctx, prompt)
	}

	reply := make(chan bool, 1)
	program.Send(confirmRequestMsg{prompt: prompt, reply: reply})

	select {
	case ok := <-reply:
		return ok, nil
	case <-exited:
		return false, errors.LoginCanceled()
	case <-ctx.Done():
		return false, context.Cause(ctx)
	}
}

// ShowPairing displays a WalletConnect pairing URI and its QR code. Outside
// a modal, e.g. when a restored session re-pairs, it is printed instead.
func (p *Presenter) ShowPairing(uri, qr string) error {
	program, _ := p.current()
	if program != nil {
		program.Send(pairingMsg{uri: uri, qr: qr})
		return nil
	}
	if p.prompter == nil || p.prompter.out == nil {
		return errNoModal
	}
	_, err := fmt.Fprintf(p.prompter.out, "\nScan with your wallet app:\n\n%s\n%s\n\n", qr, uri)
	return err
}

// Wait blocks until the current modal's program has exited
func (p *Presenter) Wait() {
	if _, exited := p.current(); exited != nil {
		<-exited
	}
}
