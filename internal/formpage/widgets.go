package formpage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VenkatGGG/formfill/internal/dom"
	"github.com/VenkatGGG/formfill/internal/question"
	"github.com/VenkatGGG/formfill/internal/retry"
)

const optionClickTimeout = time.Second

// Widgets performs element-level operations on one question. Methods report
// whether the value was applied; a false with nil error is a logged skip.
type Widgets struct {
	Policy retry.Policy
	Logger *slog.Logger
}

func (w Widgets) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// FillText types value into the first text input, falling back to the first
// textarea.
func (w Widgets) FillText(ctx context.Context, scope Scope, value string) (bool, error) {
	for _, selector := range []string{SelectorTextInput, SelectorTextarea} {
		field := scope.Locator(selector)
		n, err := field.Count(ctx)
		if err != nil {
			return false, err
		}
		if n == 0 {
			continue
		}
		if err := field.Nth(0).Fill(ctx, value); err != nil {
			return false, fmt.Errorf("fill %s: %w", selector, err)
		}
		return true, nil
	}
	w.logger().Warn("no text input found for question")
	return false, nil
}

// SelectRadio clicks the radio at the provider's 1-based label.
func (w Widgets) SelectRadio(ctx context.Context, scope Scope, label int) (bool, error) {
	radios := scope.Locator(SelectorRadio)
	count, err := radios.Count(ctx)
	if err != nil {
		return false, err
	}
	if count == 0 {
		w.logger().Warn("no radio button found for radio question")
		return false, nil
	}

	index := label - 1
	if index < 0 {
		w.logger().Warn("radio answer index is less than 1", "answer_index", label)
		return false, nil
	}
	if index >= count {
		w.logger().Warn("radio answer index exceeds available options", "answer_index", label, "options", count)
		return false, nil
	}
	if err := radios.Nth(index).Click(ctx, dom.ClickOptions{}); err != nil {
		return false, fmt.Errorf("click radio %d: %w", index, err)
	}
	return true, nil
}

// SelectDropdown opens the listbox and clicks the option at index, matched
// directly against the option list (which starts with the placeholder).
// Both steps run under the retry policy.
func (w Widgets) SelectDropdown(ctx context.Context, scope Scope, index int) (bool, error) {
	listbox := scope.Locator(SelectorListbox)
	n, err := listbox.Count(ctx)
	if err != nil {
		return false, err
	}
	if n == 0 {
		w.logger().Warn("no dropdown found for dropdown question")
		return false, nil
	}

	options := scope.Locator(SelectorOption)
	err = w.Policy.Do(ctx, "open dropdown", func(ctx context.Context, wait time.Duration) error {
		if err := listbox.Nth(0).Click(ctx, dom.ClickOptions{Timeout: wait}); err != nil {
			return err
		}
		return options.Nth(0).WaitVisible(ctx, wait)
	})
	if err != nil {
		return false, err
	}

	count, err := options.Count(ctx)
	if err != nil {
		return false, err
	}
	if index < 0 {
		w.logger().Warn("dropdown answer index is less than 1", "answer_index", index)
		return false, nil
	}
	if index >= count {
		w.logger().Warn("dropdown answer index exceeds available options", "answer_index", index, "options", count)
		return false, nil
	}

	option := options.Nth(index)
	err = w.Policy.Do(ctx, "select dropdown option", func(ctx context.Context, wait time.Duration) error {
		if err := option.WaitVisible(ctx, wait); err != nil {
			return err
		}
		return option.Click(ctx, dom.ClickOptions{Timeout: optionClickTimeout})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Apply writes answer onto the question's widget. Out-of-range indexes and
// unsupported kinds are logged and leave the question unanswered.
func (w Widgets) Apply(ctx context.Context, q Question, answer question.Answer) error {
	logger := w.logger().With("question", question.Truncate(q.Payload.Text, 80), "kind", string(q.Payload.Kind))

	switch q.Payload.Kind {
	case question.KindRadio, question.KindDropdown:
		if answer.Index == nil {
			logger.Warn("answer has no choice index, skipping", "answer", question.Truncate(answer.Text, 80))
			return nil
		}
		scoped := Widgets{Policy: w.Policy, Logger: logger}
		var err error
		if q.Payload.Kind == question.KindRadio {
			_, err = scoped.SelectRadio(ctx, q.Handle, *answer.Index)
		} else {
			_, err = scoped.SelectDropdown(ctx, q.Handle, *answer.Index)
		}
		return err
	case question.KindShortAnswer:
		_, err := Widgets{Policy: w.Policy, Logger: logger}.FillText(ctx, q.Handle, answer.Text)
		return err
	default:
		logger.Warn("unhandled question type, skipping")
		return nil
	}
}
