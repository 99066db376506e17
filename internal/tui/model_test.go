package tui

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/ahwlsqja/walletlogin/internal/modal"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, walletID string) (login.Result, error)

func (f runnerFunc) Run(ctx context.Context, walletID string) (login.Result, error) {
	return f(ctx, walletID)
}

var testOptions = []modal.WalletOption{
	{ID: walletconn.WalletConnectID, Title: "Login with WalletConnect", Section: modal.SectionRecommended},
	{ID: walletconn.MetaMaskID, Title: "Login with MetaMask", Section: modal.SectionDirect},
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m loginModel, msg tea.Msg) (loginModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	lm, ok := next.(loginModel)
	require.True(t, ok)
	return lm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestLoginModel_SelectsHighlightedWallet(t *testing.T) {
	var selected string
	md := modal.New(runnerFunc(func(_ context.Context, id string) (login.Result, error) {
		selected = id
		return login.Result{WalletID: id, WalletAddress: "0xABC", Token: "tok1"}, nil
	}), testOptions, nil)
	m := newLoginModel(context.Background(), md)

	m, _ = update(t, m, key("down"))
	m, _ = update(t, m, key("down"))
	assert.Equal(t, 1, m.cursor)
	m, _ = update(t, m, key("k"))
	m, _ = update(t, m, key("j"))

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	done, ok := cmd().(selectDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	assert.Equal(t, walletconn.MetaMaskID, selected)

	_, cmd = update(t, m, done)
	assert.True(t, isQuit(cmd))

	result, err := md.WaitForLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", result.Token)
}

func TestLoginModel_FailureIsShownForRetry(t *testing.T) {
	md := modal.New(runnerFunc(func(context.Context, string) (login.Result, error) {
		return login.Result{}, stderrors.New("bridge unreachable")
	}), testOptions, nil)
	m := newLoginModel(context.Background(), md)

	m, cmd := update(t, m, key("enter"))
	m, cmd = update(t, m, cmd())
	assert.Nil(t, cmd)

	assert.Equal(t, modal.StateOpen, md.State())
	view := m.View()
	assert.Contains(t, view, "Login failed: ")
	assert.Contains(t, view, "bridge unreachable")
	assert.Contains(t, view, modal.SectionRecommended)
	assert.Contains(t, view, "Login with MetaMask")
}

func TestLoginModel_EscCancels(t *testing.T) {
	md := modal.New(runnerFunc(func(context.Context, string) (login.Result, error) {
		return login.Result{}, nil
	}), testOptions, nil)
	m := newLoginModel(context.Background(), md)

	_, cmd := update(t, m, key("esc"))
	assert.True(t, isQuit(cmd))

	_, err := md.WaitForLogin(context.Background())
	assert.ErrorIs(t, err, errors.ErrLoginCanceled)
}

func TestLoginModel_ConfirmDialog(t *testing.T) {
	md := modal.New(runnerFunc(func(context.Context, string) (login.Result, error) {
		return login.Result{}, nil
	}), testOptions, nil)
	m := newLoginModel(context.Background(), md)

	prompt := login.Prompt{Title: "Sign Message", Message: "please sign", ConfirmLabel: "Sign Message"}

	reply := make(chan bool, 1)
	m, _ = update(t, m, confirmRequestMsg{prompt: prompt, reply: reply})
	assert.Contains(t, m.viewPending(), "please sign")

	m, _ = update(t, m, key("y"))
	assert.True(t, <-reply)
	assert.Nil(t, m.confirm)

	declined := make(chan bool, 1)
	m, _ = update(t, m, confirmRequestMsg{prompt: prompt, reply: declined})
	m, _ = update(t, m, key("n"))
	assert.False(t, <-declined)

	// Modal going away answers an open dialog with no
	dropped := make(chan bool, 1)
	m, _ = update(t, m, confirmRequestMsg{prompt: prompt, reply: dropped})
	_, cmd := update(t, m, modalDoneMsg{})
	assert.True(t, isQuit(cmd))
	assert.False(t, <-dropped)
}

func TestLoginModel_PendingViewShowsPairing(t *testing.T) {
	started := make(chan struct{})
	md := modal.New(runnerFunc(func(ctx context.Context, _ string) (login.Result, error) {
		close(started)
		<-ctx.Done()
		return login.Result{}, context.Cause(ctx)
	}), testOptions, nil)
	m := newLoginModel(context.Background(), md)

	_, cmd := update(t, m, key("enter"))
	go cmd()
	<-started

	m, _ = update(t, m, pairingMsg{uri: "wc:topic@1?bridge=x&key=y", qr: "QRCODE"})
	view := m.View()
	assert.Contains(t, view, "Waiting for WalletConnect")
	assert.Contains(t, view, "QRCODE")
	assert.Contains(t, view, "wc:topic@1")

	_, cmd = update(t, m, key("esc"))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, modal.StateRemoved, md.State())
}

func TestPresenter_WithoutModal(t *testing.T) {
	p := NewPresenter(nil, nil)

	_, err := p.Confirm(context.Background(), login.Prompt{Title: "Login Required"})
	assert.ErrorIs(t, err, errNoModal)
	assert.ErrorIs(t, p.ShowPairing("wc:x", "qr"), errNoModal)
	p.Wait()
}

func TestPresenter_RunsModalProgram(t *testing.T) {
	p := NewPresenter(nil, nil, tea.WithInput(nil), tea.WithOutput(io.Discard))

	md := modal.New(runnerFunc(func(_ context.Context, id string) (login.Result, error) {
		return login.Result{WalletID: id, WalletAddress: "0xABC", Token: "tok1"}, nil
	}), testOptions, nil)
	require.NoError(t, p.Present(context.Background(), md))

	go func() { _ = md.Select(context.Background(), walletconn.MetaMaskID) }()

	result, err := md.WaitForLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, walletconn.MetaMaskID, result.WalletID)

	exited := make(chan struct{})
	go func() {
		p.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("modal program did not exit")
	}
}
