package formpage

import (
	"regexp"

	"github.com/VenkatGGG/formfill/internal/dom"
)

// Selectors of the supported form platform.
const (
	SelectorQuestion  = `[role="listitem"]`
	SelectorHeading   = `[role="heading"]`
	SelectorImage     = `img`
	SelectorRadio     = `[role="radio"]`
	SelectorCheckbox  = `[role="checkbox"]`
	SelectorListbox   = `[role="listbox"]`
	SelectorOption    = `[role="option"]`
	SelectorTextInput = `input[type="text"]`
	SelectorTextarea  = `textarea`
	SelectorButton    = `[role="button"]`
	SelectorViewScore = `[aria-label="View score"]`
	SelectorBody      = `body`
)

const CompletionText = "Your response has been recorded"

var (
	nextLabel      = regexp.MustCompile(`(?i)next|ถัดไป`)
	submitLabel    = regexp.MustCompile(`(?i)submit|ส่ง`)
	viewScoreLabel = regexp.MustCompile(`(?i)view score|ดูคะแนน`)
	completion     = regexp.MustCompile(regexp.QuoteMeta(CompletionText))
)

// Scope is anything selectors can be resolved against: a page or a question.
type Scope interface {
	Locator(selector string) dom.Locator
}

func NextButton(page Scope) dom.Locator {
	return page.Locator(SelectorButton).WithText(nextLabel)
}

func SubmitButton(page Scope) dom.Locator {
	return page.Locator(SelectorButton).WithText(submitLabel)
}

// ViewScoreControls lists the locators that may reveal the score, most
// specific first.
func ViewScoreControls(page Scope) []dom.Locator {
	return []dom.Locator{
		page.Locator(SelectorViewScore),
		page.Locator(SelectorButton).WithText(viewScoreLabel),
	}
}

func CompletionBanner(page Scope) dom.Locator {
	return page.Locator(SelectorBody).WithText(completion)
}
