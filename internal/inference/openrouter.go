package inference

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/VenkatGGG/formfill/internal/question"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openrouter/auto"

	defaultReferer = "https://github.com/VenkatGGG/formfill"
	defaultTitle   = "formfill"
)

type OpenRouterOptions struct {
	APIKey           string
	Model            string
	BaseURL          string
	Timeout          time.Duration
	// ExtractImageText enables the text-only image transcription pre-pass.
	ExtractImageText bool
	Referer          string
	Title            string
	Logger           *slog.Logger
}

// OpenRouterGateway talks to any OpenAI-compatible chat completions endpoint;
// OpenRouter is the default.
type OpenRouterGateway struct {
	client           *openai.Client
	model            string
	extractImageText bool
	logger           *slog.Logger
}

func NewOpenRouterGateway(opts OpenRouterOptions) (*OpenRouterGateway, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openrouter api key is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	referer := opts.Referer
	if referer == "" {
		referer = defaultReferer
	}
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &attributionTransport{
			base:    http.DefaultTransport,
			referer: referer,
			title:   title,
		},
	}

	logger.Info("initializing inference gateway", "model", model, "base_url", baseURL, "extract_image_text", opts.ExtractImageText)
	return &OpenRouterGateway{
		client:           openai.NewClientWithConfig(cfg),
		model:            model,
		extractImageText: opts.ExtractImageText,
		logger:           logger,
	}, nil
}

func (g *OpenRouterGateway) Answer(ctx context.Context, q question.Payload) (question.Answer, error) {
	var extracted string
	if g.extractImageText && len(q.ImageURLs) > 0 {
		extracted = g.extractText(ctx, q)
	}

	content, err := g.complete(ctx, buildPrompt(q, extracted))
	if err != nil {
		return question.Answer{}, err
	}
	answer := question.NewAnswer(content, q.Kind)
	answer.ExtractedText = extracted
	return answer, nil
}

// extractText is best effort: provider failures here only lose the hint.
func (g *OpenRouterGateway) extractText(ctx context.Context, q question.Payload) string {
	content, err := g.complete(ctx, buildExtractionPrompt(q.ImageURLs))
	if err != nil {
		g.logger.Warn("image text extraction failed", "question", question.Truncate(q.Text, 80), "err", err)
		return ""
	}
	extracted := parseExtraction(content)
	if extracted == "" {
		g.logger.Debug("image is not text-only, extraction discarded", "question", question.Truncate(q.Text, 80))
	}
	return extracted
}

func (g *OpenRouterGateway) complete(ctx context.Context, parts []openai.ChatMessagePart) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Message: "provider returned no choices"}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &UpstreamError{Message: "provider returned an empty response"}
	}
	return content, nil
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}

// attributionTransport adds the OpenRouter app attribution headers.
type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("HTTP-Referer", t.referer)
	cloned.Header.Set("X-Title", t.title)
	return t.base.RoundTrip(cloned)
}
