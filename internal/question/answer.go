package question

import (
	"strings"
	"unicode"
)

// Answer is what the answer service produced for one question. Index is set
// only for choice questions and holds the provider's 1-based label.
type Answer struct {
	Text          string `json:"answer"`
	Index         *int   `json:"answer_index,omitempty"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

// NewAnswer builds an Answer from a raw provider or server response.
func NewAnswer(raw string, kind Kind) Answer {
	answer := Answer{Text: strings.TrimSpace(raw)}
	if kind.IsChoice() {
		if index, ok := ParseChoiceIndex(answer.Text); ok {
			answer.Index = &index
		}
	}
	return answer
}

// ParseChoiceIndex reads the leading integer of a response such as "3",
// " 2. Tokyo" or "4)".
func ParseChoiceIndex(raw string) (int, bool) {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	negative := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		negative = s[0] == '-'
		s = s[1:]
	}

	value := 0
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		value = value*10 + int(r-'0')
		digits++
		if digits > 9 {
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	if negative {
		value = -value
	}
	return value, true
}

// Truncate collapses whitespace and cuts s to at most length runes for logs.
func Truncate(s string, length int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	runes := []rune(collapsed)
	if length <= 0 || len(runes) <= length {
		return collapsed
	}
	return string(runes[:length]) + "…"
}
