package tui

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/charmbracelet/huh"
)

// Prompter shows login prompts as standalone huh confirmations
type Prompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

var _ login.Prompter = (*Prompter)(nil)

// NewPrompter creates a prompter on in/out. accessible switches huh to its
// plain line-based mode.
func NewPrompter(in io.Reader, out io.Writer, accessible bool) *Prompter {
	return &Prompter{in: in, out: out, accessible: accessible}
}

func (p *Prompter) form(prompt login.Prompt, value *bool) *huh.Form {
	label := prompt.ConfirmLabel
	if label == "" {
		label = "Yes"
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt.Title).
				Description(prompt.Message).
				Affirmative(label).
				Negative("Cancel").
				Value(value),
		),
	).
		WithTheme(huh.ThemeCatppuccin()).
		WithAccessible(p.accessible).
		WithInput(p.in).
		WithOutput(p.out)
}

// Confirm blocks until the user answers. Aborting the form counts as no.
func (p *Prompter) Confirm(ctx context.Context, prompt login.Prompt) (bool, error) {
	var ok bool
	if err := p.form(prompt, &ok).RunWithContext(ctx); err != nil {
		if stderrors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return false, ctxErr
		}
		return false, err
	}
	return ok, nil
}
