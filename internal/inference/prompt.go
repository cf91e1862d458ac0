package inference

import (
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/VenkatGGG/formfill/internal/question"
)

const (
	systemPrompt = "You are assisting with filling a google form. Provide concise answers in the exact format user want for direct Google Form submissions."

	extractionPrompt = "Transcribe the text in the attached image exactly. " +
		"If the image contains anything other than text (drawings, photos, diagrams, charts), reply with exactly " + notTextOnlyMarker + " and nothing else."

	notTextOnlyMarker = "NOT_TEXT_ONLY"
)

// buildPrompt renders the user turn: question, 1-based choice labels, the
// response instruction, then one part per image.
func buildPrompt(q question.Payload, extractedText string) []openai.ChatMessagePart {
	lines := []string{"Question: " + strings.TrimSpace(q.Text)}
	if extractedText != "" {
		lines = append(lines, "Image text: "+extractedText)
	}

	if len(q.Choices) > 0 {
		lines = append(lines, "Choices:")
		for i, choice := range q.Choices {
			lines = append(lines, strconv.Itoa(i+1)+". "+choice)
		}
		lines = append(lines, "Respond with ONLY the index of choice number that best answers the question.")
	} else {
		lines = append(lines, "Respond with the concise text that best answers the question.")
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: strings.Join(lines, "\n"),
	}}
	return append(parts, imageParts(q.ImageURLs)...)
}

func buildExtractionPrompt(imageURLs []string) []openai.ChatMessagePart {
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: extractionPrompt,
	}}
	return append(parts, imageParts(imageURLs)...)
}

func imageParts(urls []string) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, len(urls))
	for _, url := range urls {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url},
		})
	}
	return parts
}

// parseExtraction returns "" when the provider judged the image not text-only.
func parseExtraction(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.Contains(strings.ToUpper(trimmed), notTextOnlyMarker) {
		return ""
	}
	return trimmed
}
