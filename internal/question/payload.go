package question

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindShortAnswer Kind = "short_answer"
	KindRadio       Kind = "radio"
	KindDropdown    Kind = "dropdown"
	KindUnknown     Kind = "unknown"
)

// ParseKind maps anything outside the known set to KindUnknown.
func ParseKind(raw string) Kind {
	switch Kind(strings.TrimSpace(raw)) {
	case KindShortAnswer:
		return KindShortAnswer
	case KindRadio:
		return KindRadio
	case KindDropdown:
		return KindDropdown
	default:
		return KindUnknown
	}
}

// IsChoice reports whether answers for this kind are option indexes.
func (k Kind) IsChoice() bool {
	return k == KindRadio || k == KindDropdown
}

// Payload is a question as collected from a form page. Its identity is its
// content; two payloads with the same canonical projection are the same question.
type Payload struct {
	Text      string   `json:"text"`
	ImageURLs []string `json:"imageUrls"`
	Choices   []string `json:"choices,omitempty"`
	Kind      Kind     `json:"type"`
}

// ValidationError marks a malformed request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ParsePayload decodes a loosely typed question object the way the answer
// service accepts it: scalars are stringified, blank entries are dropped and
// unknown kinds degrade to KindUnknown.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Payload{}, invalid("Missing question payload")
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, invalid("Missing question payload")
	}

	text := strings.TrimSpace(stringify(fields["text"]))
	if text == "" {
		return Payload{}, invalid("Question text is required")
	}

	payload := Payload{
		Text:      text,
		ImageURLs: []string{},
		Kind:      KindUnknown,
	}
	if images, ok := fields["imageUrls"].([]any); ok {
		payload.ImageURLs = nonBlank(images)
	}
	if choices, ok := fields["choices"].([]any); ok {
		payload.Choices = nonBlank(choices)
	}
	if kind, ok := fields["type"].(string); ok {
		payload.Kind = ParseKind(kind)
	}
	return payload, nil
}

func nonBlank(values []any) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		item := strings.TrimSpace(stringify(value))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
