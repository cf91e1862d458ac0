package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/VenkatGGG/formfill/internal/dom"
)

type handlerFunc func(method string, params map[string]any) (any, *responseError)

// fakeBrowser serves the DevTools discovery endpoint and one page socket
// that answers calls through handle. It emits an unrelated event before
// every response.
type fakeBrowser struct {
	mu          sync.Mutex
	methods     []string
	expressions []string
	handle      handlerFunc
	server      *httptest.Server
}

func newFakeBrowser(t *testing.T, handle handlerFunc) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{handle: handle}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, _ *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(fb.server.URL, "http") + "/devtools/page/1"
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"type": "service_worker", "webSocketDebuggerUrl": "ws://ignored"},
			{"type": "page", "url": "about:blank", "webSocketDebuggerUrl": wsURL},
		})
	})
	mux.HandleFunc("/devtools/page/1", fb.serveSocket)
	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBrowser) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req struct {
			ID     int64          `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			return
		}

		fb.mu.Lock()
		fb.methods = append(fb.methods, req.Method)
		if expression, ok := req.Params["expression"].(string); ok {
			fb.expressions = append(fb.expressions, expression)
		}
		fb.mu.Unlock()

		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"method":"Page.frameNavigated","params":{}}`)); err != nil {
			return
		}

		response := map[string]any{"id": req.ID}
		result, callErr := fb.handle(req.Method, req.Params)
		if callErr != nil {
			response["error"] = callErr
		} else {
			response["result"] = result
		}
		raw, _ := json.Marshal(response)
		if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
			return
		}
	}
}

func (fb *fakeBrowser) calls() ([]string, []string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.methods...), append([]string(nil), fb.expressions...)
}

func value(v any) any {
	return map[string]any{"result": map[string]any{"type": "object", "value": v}}
}

func dialPage(t *testing.T, handle handlerFunc) (*Page, *fakeBrowser) {
	t.Helper()
	fb := newFakeBrowser(t, handle)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, fb.server.URL+"/")
	require.NoError(t, err)
	return NewPage(client, nil, nil), fb
}

func TestDialEnablesDomainsAndNavigateWaitsForLoad(t *testing.T) {
	page, fb := dialPage(t, func(method string, params map[string]any) (any, *responseError) {
		if method == "Runtime.evaluate" && params["expression"] == "document.readyState" {
			return value("complete"), nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	require.NoError(t, page.Navigate(context.Background(), "https://forms.example/f"))

	methods, _ := fb.calls()
	assert.Equal(t, []string{"Page.enable", "Runtime.enable", "Page.navigate", "Runtime.evaluate"}, methods)
}

func TestNavigateReportsErrorText(t *testing.T) {
	page, _ := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Page.navigate" {
			return map[string]any{"errorText": "net::ERR_NAME_NOT_RESOLVED"}, nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	err := page.Navigate(context.Background(), "https://nowhere.invalid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestLocatorCompilesStepsIntoExpression(t *testing.T) {
	page, fb := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Runtime.evaluate" {
			return value(map[string]any{"found": true, "value": 2}), nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	n, err := page.Locator(`[role="listitem"]`).Nth(1).Parent(2).WithText(regexp.MustCompile(`(?i)next`)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, expressions := fb.calls()
	require.Len(t, expressions, 1)
	assert.Contains(t, expressions[0], `[{"selector":"[role=\"listitem\"]"},{"nth":1},{"parent":2},{"pattern":"next","flags":"i"}]`)
	assert.Contains(t, expressions[0], `{"name":"count"}`)
}

func TestLocatorElementOperations(t *testing.T) {
	page, _ := dialPage(t, func(method string, params map[string]any) (any, *responseError) {
		if method != "Runtime.evaluate" {
			return map[string]any{}, nil
		}
		expression, _ := params["expression"].(string)
		switch {
		case strings.Contains(expression, `"name":"text"`):
			return value(map[string]any{"found": true, "visible": true, "value": "Question 1\nRequired"}), nil
		case strings.Contains(expression, `"arg":"aria-checked"`):
			return value(map[string]any{"found": true, "visible": true, "value": "false"}), nil
		case strings.Contains(expression, `"name":"attribute"`):
			return value(map[string]any{"found": true, "visible": true, "value": nil}), nil
		default:
			return value(map[string]any{"found": false, "value": nil}), nil
		}
	})
	defer page.Close(context.Background())
	ctx := context.Background()

	text, err := page.Locator("h1").Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Question 1\nRequired", text)

	checked, ok, err := page.Locator("div").Attribute(ctx, "aria-checked")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "false", checked)

	_, ok, err = page.Locator("img").Attribute(ctx, "src")
	require.NoError(t, err)
	assert.False(t, ok)

	err = page.Locator("button").Click(ctx, dom.ClickOptions{Timeout: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestClickForceSkipsVisibility(t *testing.T) {
	page, fb := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Runtime.evaluate" {
			return value(map[string]any{"found": true, "visible": false, "value": nil}), nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	require.NoError(t, page.Locator(`[role="radio"]`).Click(context.Background(), dom.ClickOptions{Force: true}))
	_, expressions := fb.calls()
	require.Len(t, expressions, 1)
	assert.Contains(t, expressions[0], `{"name":"click","force":true}`)
}

func TestFillFocusesThenInsertsText(t *testing.T) {
	page, fb := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Runtime.evaluate" {
			return value(map[string]any{"found": true, "visible": true, "value": nil}), nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	require.NoError(t, page.Locator("textarea").Fill(context.Background(), "hello"))
	methods, _ := fb.calls()
	assert.Equal(t, []string{"Page.enable", "Runtime.enable", "Runtime.evaluate", "Input.insertText"}, methods)
}

func TestEvaluateSurfacesExceptions(t *testing.T) {
	page, _ := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Runtime.evaluate" {
			return map[string]any{
				"result":           map[string]any{"type": "object"},
				"exceptionDetails": map[string]any{"text": "Uncaught", "exception": map[string]any{"description": "SyntaxError: bad selector"}},
			}, nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	_, err := page.Locator("[[").Count(context.Background())
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr), "got %v", err)
	assert.Equal(t, "SyntaxError: bad selector", evalErr.Text)
}

func TestCallSurfacesProtocolErrors(t *testing.T) {
	page, _ := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Page.captureScreenshot" {
			return nil, &responseError{Code: -32000, Message: "Unable to capture screenshot"}
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	err := page.Screenshot(context.Background(), filepath.Join(t.TempDir(), "x.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to capture screenshot")
}

func TestScreenshotWritesPNG(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("\x89PNG"))
	page, _ := dialPage(t, func(method string, _ map[string]any) (any, *responseError) {
		if method == "Page.captureScreenshot" {
			return map[string]any{"data": encoded}, nil
		}
		return map[string]any{}, nil
	})
	defer page.Close(context.Background())

	path := filepath.Join(t.TempDir(), "shots", "1.png")
	require.NoError(t, page.Screenshot(context.Background(), path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(raw))
}

func TestCloseRunsRelease(t *testing.T) {
	fb := newFakeBrowser(t, func(string, map[string]any) (any, *responseError) { return map[string]any{}, nil })
	client, err := Dial(context.Background(), fb.server.URL)
	require.NoError(t, err)

	released := false
	page := NewPage(client, func(context.Context) error {
		released = true
		return nil
	}, nil)
	_ = page.Close(context.Background())
	assert.True(t, released)
}

func TestJSPattern(t *testing.T) {
	source, flags := jsPattern(regexp.MustCompile(`(?i)next|ถัดไป`))
	assert.Equal(t, "next|ถัดไป", source)
	assert.Equal(t, "i", flags)

	source, flags = jsPattern(regexp.MustCompile(regexp.QuoteMeta("Your response has been recorded")))
	assert.Equal(t, "Your response has been recorded", source)
	assert.Empty(t, flags)
}
