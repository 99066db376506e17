package tui

import (
	"strings"

	"github.com/ahwlsqja/walletlogin/internal/modal"
)

func (m loginModel) viewOptions() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(modal.Title))
	b.WriteString("\n")

	section := ""
	for i, opt := range m.options {
		if opt.Section != section {
			section = opt.Section
			b.WriteString("\n")
			b.WriteString(sectionStyle.Render(section))
			b.WriteString("\n")
			if section == modal.SectionDirect {
				b.WriteString(noteStyle.Render(modal.DirectLoginNote))
				b.WriteString("\n")
			}
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + opt.Title))
		} else {
			b.WriteString(optionStyle.Render("  " + opt.Title))
		}
		b.WriteString("\n")
	}

	if err := m.modal.LastError(); err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Login failed: " + err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(navStyle.Render("↑/↓: choose • enter: log in • esc: cancel"))
	return indent(b.String())
}

func (m loginModel) viewPending() string {
	if m.confirm != nil {
		body := titleStyle.Render(m.confirm.prompt.Title) + "\n\n" +
			m.confirm.prompt.Message + "\n\n" +
			navStyle.Render("y/enter: "+m.confirm.prompt.ConfirmLabel+" • n/esc: cancel")
		return indent(dialogStyle.Render(body))
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" Waiting for ")
	b.WriteString(m.walletTitle(m.modal.Running()))
	b.WriteString("...\n")

	if m.pairingQR != "" {
		b.WriteString("\nScan with your wallet app:\n\n")
		b.WriteString(m.pairingQR)
		b.WriteString("\n")
	}
	if m.pairingURI != "" {
		b.WriteString(navStyle.Render(m.pairingURI))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(navStyle.Render("esc: cancel"))
	return indent(b.String())
}

func (m loginModel) walletTitle(id string) string {
	for _, opt := range m.options {
		if opt.ID == id {
			return strings.TrimPrefix(opt.Title, "Login with ")
		}
	}
	return "wallet"
}

func indent(block string) string {
	return "\n" + strings.Repeat(" ", 2) + strings.ReplaceAll(block, "\n", "\n  ")
}
