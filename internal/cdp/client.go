// Package cdp drives a Chromium page over the DevTools protocol and exposes
// it as a dom.Page.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Client is one DevTools websocket session attached to a page target.
// Calls are serialized.
type Client struct {
	conn      *websocket.Conn
	idCounter int64
	mu        sync.Mutex
}

type targetResponse struct {
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type envelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EvaluationError is a JavaScript exception raised by Runtime.evaluate.
type EvaluationError struct {
	Text string
}

func (e *EvaluationError) Error() string {
	return "javascript exception: " + e.Text
}

const (
	DefaultEndpoint = "http://127.0.0.1:9222"

	defaultCallTimeout = 20 * time.Second
	pollInterval       = 150 * time.Millisecond
)

// Dial attaches to the first page target of the browser at baseURL, opening
// a blank one when the browser has no page yet.
func Dial(ctx context.Context, baseURL string) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = DefaultEndpoint
	}
	trimmed = strings.TrimSuffix(trimmed, "/")

	var targets []targetResponse
	if err := getJSON(ctx, http.MethodGet, trimmed+"/json/list", &targets); err != nil {
		return nil, err
	}

	var pageSocketURL string
	for _, target := range targets {
		if target.Type == "page" && strings.TrimSpace(target.WebSocketDebuggerURL) != "" {
			pageSocketURL = target.WebSocketDebuggerURL
			break
		}
	}
	if pageSocketURL == "" {
		var created targetResponse
		if err := getJSON(ctx, http.MethodPut, trimmed+"/json/new?about:blank", &created); err != nil {
			return nil, fmt.Errorf("open page target: %w", err)
		}
		pageSocketURL = created.WebSocketDebuggerURL
	}
	if strings.TrimSpace(pageSocketURL) == "" {
		return nil, errors.New("no page target websocket found")
	}

	conn, _, err := websocket.Dial(ctx, pageSocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial cdp websocket: %w", err)
	}
	conn.SetReadLimit(64 << 20)

	client := &Client{conn: conn}
	for _, domain := range []string{"Page.enable", "Runtime.enable"} {
		if err := client.Call(ctx, domain, nil, nil); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

func getJSON(ctx context.Context, method, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build target request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query cdp target endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cdp target endpoint returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode cdp target response: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (c *Client) Navigate(ctx context.Context, targetURL string) error {
	var response struct {
		ErrorText string `json:"errorText"`
	}
	if err := c.Call(ctx, "Page.navigate", map[string]any{"url": targetURL}, &response); err != nil {
		return err
	}
	if response.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", targetURL, response.ErrorText)
	}
	return nil
}

// CaptureScreenshot returns the base64 PNG of the current viewport.
func (c *Client) CaptureScreenshot(ctx context.Context) (string, error) {
	var response struct {
		Data string `json:"data"`
	}
	if err := c.Call(ctx, "Page.captureScreenshot", map[string]any{"format": "png"}, &response); err != nil {
		return "", err
	}
	return response.Data, nil
}

// InsertText types text into the focused element.
func (c *Client) InsertText(ctx context.Context, text string) error {
	if err := c.Call(ctx, "Input.insertText", map[string]any{"text": text}, nil); err != nil {
		return fmt.Errorf("insert text: %w", err)
	}
	return nil
}

// Evaluate runs expression in the page and decodes its JSON value into out.
func (c *Client) Evaluate(ctx context.Context, expression string, out any) error {
	var response struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := c.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &response); err != nil {
		return err
	}
	if details := response.ExceptionDetails; details != nil {
		text := details.Text
		if details.Exception != nil && details.Exception.Description != "" {
			text = details.Exception.Description
		}
		return &EvaluationError{Text: text}
	}
	if out == nil || len(response.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Result.Value, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idCounter++
	requestID := c.idCounter

	payload := map[string]any{
		"id":     requestID,
		"method": method,
	}
	if params != nil {
		payload["params"] = params
	}

	deadline := time.Now().Add(defaultCallTimeout)
	if explicit, ok := ctx.Deadline(); ok {
		deadline = explicit
	}
	writeCtx, cancelWrite := context.WithDeadline(ctx, deadline)
	defer cancelWrite()
	if err := c.conn.Write(writeCtx, websocket.MessageText, mustMarshal(payload)); err != nil {
		return fmt.Errorf("write cdp request: %w", err)
	}

	for {
		readCtx, cancelRead := context.WithDeadline(ctx, deadline)
		_, message, err := c.conn.Read(readCtx)
		cancelRead()
		if err != nil {
			return fmt.Errorf("read cdp response: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}

		// Events and stale responses.
		if env.ID != requestID {
			continue
		}

		if env.Error != nil {
			return fmt.Errorf("cdp %s failed (%d): %s", method, env.Error.Code, env.Error.Message)
		}

		if out != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("decode %s response: %w", method, err)
			}
		}
		return nil
	}
}

func mustMarshal(value any) []byte {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return raw
}
