package formpage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VenkatGGG/formfill/internal/dom"
	"github.com/VenkatGGG/formfill/internal/question"
)

const questionWaitTimeout = 5 * time.Second

// Question pairs a collected payload with the element it came from. It lives
// for one page cycle only.
type Question struct {
	Payload question.Payload
	Handle  dom.Locator
}

// CollectQuestions enumerates the visible questions of the current page.
// Items without label text are skipped.
func CollectQuestions(ctx context.Context, page Scope, logger *slog.Logger) ([]Question, error) {
	if logger == nil {
		logger = slog.Default()
	}

	items := page.Locator(SelectorQuestion)
	if err := items.Nth(0).WaitVisible(ctx, questionWaitTimeout); err != nil {
		logger.Debug("no question items became visible", "err", err)
	}

	count, err := items.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}

	out := make([]Question, 0, count)
	for i := 0; i < count; i++ {
		item := items.Nth(i)
		payload, err := readQuestion(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("read question %d: %w", i, err)
		}
		if payload.Text == "" {
			continue
		}
		out = append(out, Question{Payload: payload, Handle: item})
	}
	return out, nil
}

func readQuestion(ctx context.Context, item dom.Locator) (question.Payload, error) {
	payload := question.Payload{ImageURLs: []string{}, Kind: question.KindUnknown}

	heading := item.Locator(SelectorHeading)
	if n, err := heading.Count(ctx); err != nil {
		return payload, err
	} else if n > 0 {
		text, err := heading.Nth(0).Text(ctx)
		if err != nil {
			return payload, err
		}
		payload.Text = firstLine(text)
	}

	images, err := imageSources(ctx, item)
	if err != nil {
		return payload, err
	}
	payload.ImageURLs = images

	radios := item.Locator(SelectorRadio)
	radioCount, err := radios.Count(ctx)
	if err != nil {
		return payload, err
	}
	if radioCount > 0 {
		payload.Kind = question.KindRadio
		payload.Choices, err = texts(ctx, radios, radioCount, 2)
		return payload, err
	}

	listbox := item.Locator(SelectorListbox)
	if n, err := listbox.Count(ctx); err != nil {
		return payload, err
	} else if n > 0 {
		options := listbox.Locator(SelectorOption)
		optionCount, err := options.Count(ctx)
		if err != nil {
			return payload, err
		}
		payload.Kind = question.KindDropdown
		payload.Choices, err = texts(ctx, options, optionCount, 0)
		return payload, err
	}

	for _, selector := range []string{SelectorTextInput, SelectorTextarea} {
		n, err := item.Locator(selector).Count(ctx)
		if err != nil {
			return payload, err
		}
		if n > 0 {
			payload.Kind = question.KindShortAnswer
			break
		}
	}
	return payload, nil
}

func imageSources(ctx context.Context, item dom.Locator) ([]string, error) {
	images := item.Locator(SelectorImage)
	count, err := images.Count(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, count)
	for i := 0; i < count; i++ {
		src, ok, err := images.Nth(i).Attribute(ctx, "src")
		if err != nil {
			return nil, err
		}
		if src = strings.TrimSpace(src); ok && src != "" {
			sources = append(sources, src)
		}
	}
	return sources, nil
}

// texts reads the label of each of the first count matches, read from the
// ancestor levels up. Blank labels are dropped.
func texts(ctx context.Context, matches dom.Locator, count, levels int) ([]string, error) {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		target := matches.Nth(i)
		if levels > 0 {
			target = target.Parent(levels)
		}
		text, err := target.Text(ctx)
		if err != nil {
			return nil, err
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

func firstLine(text string) string {
	trimmed := strings.TrimSpace(text)
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
