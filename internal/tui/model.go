package tui

import (
	"context"

	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/ahwlsqja/walletlogin/internal/modal"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages
type (
	modalDoneMsg struct{}
	pairingMsg   struct{ uri, qr string }
)

type selectDoneMsg struct {
	walletID string
	err      error
}

type confirmRequestMsg struct {
	prompt login.Prompt
	reply  chan<- bool
}

// loginModel renders one login modal
type loginModel struct {
	ctx   context.Context
	modal *modal.Modal

	options []modal.WalletOption
	cursor  int
	spinner spinner.Model
	width   int

	// set while a flow runs
	pairingURI string
	pairingQR  string
	confirm    *confirmRequestMsg
}

func newLoginModel(ctx context.Context, m *modal.Modal) loginModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return loginModel{
		ctx:     ctx,
		modal:   m,
		options: m.Options(),
		spinner: s,
	}
}

func (m loginModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitDone,
	)
}

func (m loginModel) waitDone() tea.Msg {
	<-m.modal.Done()
	return modalDoneMsg{}
}

func (m loginModel) selectWallet(walletID string) tea.Cmd {
	return func() tea.Msg {
		return selectDoneMsg{walletID: walletID, err: m.modal.Select(m.ctx, walletID)}
	}
}

// answer replies to the pending confirmation
func (m loginModel) answer(ok bool) loginModel {
	if m.confirm != nil {
		m.confirm.reply <- ok
		m.confirm = nil
	}
	return m
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pairingMsg:
		m.pairingURI, m.pairingQR = msg.uri, msg.qr

	case confirmRequestMsg:
		// a newer request replaces an unanswered one
		m = m.answer(false)
		m.confirm = &msg

	case selectDoneMsg:
		m.pairingURI, m.pairingQR = "", ""
		m = m.answer(false)
		if m.modal.State() == modal.StateRemoved {
			return m, tea.Quit
		}

	case modalDoneMsg:
		m = m.answer(false)
		return m, tea.Quit
	}
	return m, nil
}

func (m loginModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m = m.answer(false)
		m.modal.Cancel()
		return m, tea.Quit
	}

	// Confirmation dialog
	if m.confirm != nil {
		switch msg.String() {
		case "y", "enter":
			return m.answer(true), nil
		case "n", "esc":
			return m.answer(false), nil
		}
		return m, nil
	}

	switch m.modal.State() {
	case modal.StateOpen:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			if len(m.options) == 0 {
				return m, nil
			}
			return m, m.selectWallet(m.options[m.cursor].ID)
		case "esc", "q":
			m.modal.Cancel()
			return m, tea.Quit
		}

	case modal.StateHidden:
		if msg.String() == "esc" {
			m.modal.Cancel()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loginModel) View() string {
	switch m.modal.State() {
	case modal.StateHidden:
		return m.viewPending()
	case modal.StateRemoved:
		return ""
	default:
		return m.viewOptions()
	}
}
