// Package autofill answers identity questions from stored credentials
// without consulting the answer server.
package autofill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/VenkatGGG/formfill/internal/credentials"
	"github.com/VenkatGGG/formfill/internal/dom"
	"github.com/VenkatGGG/formfill/internal/formpage"
	"github.com/VenkatGGG/formfill/internal/question"
)

// Field names an identity field.
type Field string

const (
	FieldEmail Field = "email"
	FieldID    Field = "id"
	FieldName  Field = "name"
	FieldClass Field = "class"
)

var (
	emailKeywords = []string{"email", "mail", "メール"}
	nameKeywords  = []string{"name", "名前", "なまえ"}
	idKeywords    = []string{"id"}
	classKeywords = []string{"class"}
)

// Resolver fills identity questions. Checks run email, id, name, class; a
// check whose keywords match but whose fill does nothing falls through to the
// next.
type Resolver struct {
	creds   credentials.Credentials
	class   string
	widgets formpage.Widgets
	logger  *slog.Logger
}

func NewResolver(creds credentials.Credentials, widgets formpage.Widgets, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	class, _ := CanonicalizeClass(creds.Class)
	return &Resolver{creds: creds, class: class, widgets: widgets, logger: logger}
}

// Resolve fills q when it is an identity question and reports whether it
// did. The label and, for choice questions, every choice are matched against
// the keywords. A false result leaves q for the answer server.
func (r *Resolver) Resolve(ctx context.Context, q formpage.Question) (bool, error) {
	label := strings.ToLower(q.Payload.Text)
	matches := func(keywords []string) bool {
		return containsAny(label, keywords) || matchesChoices(q.Payload.Choices, keywords)
	}

	if r.creds.Email != "" && matches(emailKeywords) {
		filled, err := r.widgets.FillText(ctx, q.Handle, r.creds.Email)
		if err != nil {
			return false, err
		}
		toggled, err := ToggleEmailOptions(ctx, q.Handle)
		if err != nil {
			return false, err
		}
		if filled || toggled {
			return r.filled(FieldEmail, q), nil
		}
	}
	if r.creds.ID != "" && matches(idKeywords) {
		filled, err := r.widgets.FillText(ctx, q.Handle, r.creds.ID)
		if err != nil {
			return false, err
		}
		if filled {
			return r.filled(FieldID, q), nil
		}
	}
	if r.creds.Name != "" && matches(nameKeywords) {
		filled, err := r.widgets.FillText(ctx, q.Handle, r.creds.Name)
		if err != nil {
			return false, err
		}
		if filled {
			return r.filled(FieldName, q), nil
		}
	}
	if r.class != "" && (containsAny(label, classKeywords) || isLikelyClassQuestion(q.Payload, r.class)) {
		filled, err := r.fillClass(ctx, q)
		if err != nil {
			return false, err
		}
		if filled {
			return r.filled(FieldClass, q), nil
		}
	}
	return false, nil
}

func (r *Resolver) filled(field Field, q formpage.Question) bool {
	r.logger.Info("autofilled question", "field", string(field), "question", question.Truncate(q.Payload.Text, 80))
	return true
}

// fillClass picks the radio or dropdown option whose label canonicalizes to
// the stored class, falling back to typing the class into a free-text field.
func (r *Resolver) fillClass(ctx context.Context, q formpage.Question) (bool, error) {
	radios := q.Handle.Locator(formpage.SelectorRadio)
	count, err := radios.Count(ctx)
	if err != nil {
		return false, err
	}
	for i := 0; i < count; i++ {
		radio := radios.Nth(i)
		text, err := radio.Parent(2).Text(ctx)
		if err != nil {
			return false, err
		}
		if class, ok := CanonicalizeClass(text); ok && class == r.class {
			if err := radio.Click(ctx, dom.ClickOptions{Force: true}); err != nil {
				return false, fmt.Errorf("click class option: %w", err)
			}
			return true, nil
		}
	}

	// Dropdown choices are listed in option order, placeholder included, which
	// is the index SelectDropdown expects.
	if q.Payload.Kind == question.KindDropdown {
		for i, choice := range q.Payload.Choices {
			if class, ok := CanonicalizeClass(choice); ok && class == r.class {
				return r.widgets.SelectDropdown(ctx, q.Handle, i)
			}
		}
	}
	return r.widgets.FillText(ctx, q.Handle, r.class)
}

// CanonicalizeClass reduces a free-form class label to its program letter
// (M, C or E) followed by its group digit (1 or 2). Labels missing either
// part do not canonicalize.
func CanonicalizeClass(value string) (string, bool) {
	upper := strings.ToUpper(value)
	letter := strings.IndexAny(upper, "MCE")
	digit := strings.IndexAny(upper, "12")
	if letter < 0 || digit < 0 {
		return "", false
	}
	return upper[letter:letter+1] + upper[digit:digit+1], true
}

// isLikelyClassQuestion catches class questions whose label lacks the
// keyword: at least two choices look like classes, or one of them is ours.
func isLikelyClassQuestion(p question.Payload, target string) bool {
	matches := 0
	for _, choice := range p.Choices {
		class, ok := CanonicalizeClass(choice)
		if !ok {
			continue
		}
		if class == target {
			return true
		}
		matches++
	}
	return matches >= 2
}

// ToggleEmailOptions ticks every unticked checkbox in scope and selects the
// first radio whose label mentions email. It reports whether anything was
// clicked.
func ToggleEmailOptions(ctx context.Context, scope formpage.Scope) (bool, error) {
	toggled := false

	boxes := scope.Locator(formpage.SelectorCheckbox)
	count, err := boxes.Count(ctx)
	if err != nil {
		return false, err
	}
	for i := 0; i < count; i++ {
		box := boxes.Nth(i)
		state, _, err := box.Attribute(ctx, "aria-checked")
		if err != nil {
			return toggled, err
		}
		if state == "true" {
			continue
		}
		if err := box.Click(ctx, dom.ClickOptions{Force: true}); err != nil {
			return toggled, fmt.Errorf("tick checkbox %d: %w", i, err)
		}
		toggled = true
	}

	radios := scope.Locator(formpage.SelectorRadio)
	count, err = radios.Count(ctx)
	if err != nil {
		return toggled, err
	}
	for i := 0; i < count; i++ {
		radio := radios.Nth(i)
		text, err := radio.Parent(2).Text(ctx)
		if err != nil {
			return toggled, err
		}
		if !containsAny(strings.ToLower(text), emailKeywords) {
			continue
		}
		if err := radio.Click(ctx, dom.ClickOptions{Force: true}); err != nil {
			return toggled, fmt.Errorf("select email radio: %w", err)
		}
		return true, nil
	}
	return toggled, nil
}

func matchesChoices(choices []string, keywords []string) bool {
	for _, choice := range choices {
		if containsAny(strings.ToLower(choice), keywords) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
