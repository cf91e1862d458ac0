package answerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VenkatGGG/formfill/internal/question"
)

const DefaultBaseURL = "https://jphw.crabdance.com/jphw"

// UpstreamError is a non-2xx reply from the answer service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("answer service returned %d: %s", e.StatusCode, e.Message)
}

type batchRequest struct {
	Questions []question.Payload `json:"questions"`
}

type batchResponse struct {
	Answers *[]string `json:"answers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnswerBatch asks the service for one answer per question. The result has
// exactly len(questions) entries in request order; zero questions never reach
// the network.
func (c *Client) AnswerBatch(ctx context.Context, questions []question.Payload) ([]question.Answer, error) {
	if len(questions) == 0 {
		return []question.Answer{}, nil
	}

	raw, err := json.Marshal(batchRequest{Questions: questions})
	if err != nil {
		return nil, fmt.Errorf("marshal answer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/answers", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("answer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var decoded batchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode answer response: %w", err)
	}
	if decoded.Answers == nil {
		return nil, errors.New("answer response is missing 'answers'")
	}
	if len(*decoded.Answers) != len(questions) {
		return nil, fmt.Errorf("answer response has %d answers for %d questions", len(*decoded.Answers), len(questions))
	}

	answers := make([]question.Answer, len(questions))
	for i, text := range *decoded.Answers {
		answers[i] = question.NewAnswer(text, questions[i].Kind)
	}
	return answers, nil
}

func errorMessage(body []byte) string {
	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Error) != "" {
		return decoded.Error
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response"
	}
	return trimmed
}
