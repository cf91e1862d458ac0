// Package confirm decides whether the traversal may advance, submit, or
// close the browser.
package confirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// PageDetails describes the page a decision is asked about. PageIndex is
// zero-based.
type PageDetails struct {
	PageIndex     int
	QuestionCount int
}

// Gateway is consulted at every page-advance, submission and close point.
// Calls block until a decision is made.
type Gateway interface {
	ConfirmNext(ctx context.Context, details PageDetails) (bool, error)
	ConfirmSubmit(ctx context.Context, details PageDetails) (bool, error)
	ConfirmClose(ctx context.Context) (bool, error)
}

// Mode selects a Gateway variant.
type Mode string

const (
	ModeAlways       Mode = "always"
	ModeExceptSubmit Mode = "except-submit"
	ModeInteractive  Mode = "interactive"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAlways:
		return ModeAlways, nil
	case ModeExceptSubmit:
		return ModeExceptSubmit, nil
	case ModeInteractive, "":
		return ModeInteractive, nil
	}
	return "", fmt.Errorf("unknown confirm mode %q (want always, except-submit or interactive)", raw)
}

// New builds the gateway for mode.
func New(mode Mode) (Gateway, error) {
	switch mode {
	case ModeAlways:
		return AlwaysApprove{}, nil
	case ModeExceptSubmit:
		return AlwaysApproveExceptSubmit{}, nil
	case ModeInteractive:
		return InteractiveOperator{}, nil
	}
	return nil, fmt.Errorf("unknown confirm mode %q", mode)
}

// AlwaysApprove approves everything.
type AlwaysApprove struct{}

func (AlwaysApprove) ConfirmNext(context.Context, PageDetails) (bool, error)   { return true, nil }
func (AlwaysApprove) ConfirmSubmit(context.Context, PageDetails) (bool, error) { return true, nil }
func (AlwaysApprove) ConfirmClose(context.Context) (bool, error)               { return true, nil }

// AlwaysApproveExceptSubmit fills every page but never submits, so the
// operator can review the form before sending it.
type AlwaysApproveExceptSubmit struct{}

func (AlwaysApproveExceptSubmit) ConfirmNext(context.Context, PageDetails) (bool, error) {
	return true, nil
}

func (AlwaysApproveExceptSubmit) ConfirmSubmit(context.Context, PageDetails) (bool, error) {
	return false, nil
}

func (AlwaysApproveExceptSubmit) ConfirmClose(context.Context) (bool, error) {
	return false, nil
}

// InteractiveOperator asks on the terminal.
type InteractiveOperator struct{}

func (InteractiveOperator) ConfirmNext(ctx context.Context, details PageDetails) (bool, error) {
	return ask(ctx,
		fmt.Sprintf("Page %d filled (%d questions). Go to the next page?", details.PageIndex+1, details.QuestionCount),
		true)
}

func (InteractiveOperator) ConfirmSubmit(ctx context.Context, details PageDetails) (bool, error) {
	return ask(ctx,
		fmt.Sprintf("Page %d filled (%d questions). Submit the form?", details.PageIndex+1, details.QuestionCount),
		false)
}

func (InteractiveOperator) ConfirmClose(ctx context.Context) (bool, error) {
	return ask(ctx, "Close the browser?", true)
}

func ask(ctx context.Context, title string, initial bool) (bool, error) {
	answer := initial
	field := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&answer)
	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	return answer, nil
}
