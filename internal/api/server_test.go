package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/formfill/internal/answercache"
	"github.com/VenkatGGG/formfill/internal/answering"
	"github.com/VenkatGGG/formfill/internal/inference"
	"github.com/VenkatGGG/formfill/internal/question"
)

type stubGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *stubGateway) Answer(_ context.Context, q question.Payload) (question.Answer, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return question.Answer{}, g.err
	}
	if q.Kind.IsChoice() {
		return question.NewAnswer("1", q.Kind), nil
	}
	return question.NewAnswer("reply: "+q.Text, q.Kind), nil
}

func newTestServer(t *testing.T, gateway inference.Gateway, opts Options) (http.Handler, *answercache.InMemoryStore) {
	t.Helper()
	store := answercache.NewInMemoryStore()
	registry := prometheus.NewRegistry()
	svc, err := answering.NewService(answering.Options{
		Store:   store,
		Gateway: gateway,
		Metrics: answering.NewMetrics(registry),
	})
	require.NoError(t, err)
	opts.Answers = svc
	opts.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	if opts.RoutePrefix == "" {
		opts.RoutePrefix = "/jphw"
	}
	return NewServer(opts).Routes(), store
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})

	for _, path := range []string{"/healthz", "/jphw/healthz", "/jphw/health"} {
		rr := do(t, handler, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "ok", decodeBody(t, rr)["status"])
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestOptionsPreflight(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})

	rr := do(t, handler, http.MethodOptions, "/jphw/answers", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "POST, GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "content-type", rr.Header().Get("Access-Control-Allow-Headers"))
}

func TestUnknownRouteIs404JSON(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})

	rr := do(t, handler, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not found", decodeBody(t, rr)["error"])
}

func TestAnswerSingle(t *testing.T) {
	gateway := &stubGateway{}
	handler, _ := newTestServer(t, gateway, Options{})

	rr := do(t, handler, http.MethodPost, "/answer", `{"question":{"text":" Capital? ","imageUrls":[],"type":"short_answer"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "reply: Capital?", decodeBody(t, rr)["answer"])
}

func TestAnswerValidationErrors(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})

	cases := []struct {
		body string
		want string
	}{
		{body: `[]`, want: "Request body must be an object"},
		{body: `{}`, want: "Missing question payload"},
		{body: `{"question":{"text":"   "}}`, want: "Question text is required"},
		{body: `{"question":null}`, want: "Missing question payload"},
		{body: `not json`, want: "Invalid JSON body"},
	}
	for _, tc := range cases {
		rr := do(t, handler, http.MethodPost, "/jphw/answer", tc.body)
		require.Equal(t, http.StatusBadRequest, rr.Code, tc.body)
		assert.Equal(t, tc.want, decodeBody(t, rr)["error"], tc.body)
	}
}

func TestAnswersBatchDedupesAndPreservesOrder(t *testing.T) {
	gateway := &stubGateway{}
	handler, store := newTestServer(t, gateway, Options{})

	body := `{"questions":[
		{"text":"Email? ","imageUrls":["b.png","a.png"],"type":"short_answer"},
		{"text":"email?","imageUrls":["a.png","b.png"],"type":"short_answer"},
		{"text":"Pick","choices":["x","y"],"imageUrls":[],"type":"radio"}
	]}`
	rr := do(t, handler, http.MethodPost, "/jphw/answers", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp batchAnswerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 3)
	assert.Equal(t, resp.Answers[0], resp.Answers[1])
	assert.Equal(t, "1", resp.Answers[2])
	assert.Equal(t, 2, gateway.calls)
	assert.Equal(t, 2, store.Len())
}

func TestAnswersBatchValidation(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})

	cases := []struct {
		body string
		want string
	}{
		{body: `{"questions":[]}`, want: "'questions' array cannot be empty"},
		{body: `{"questions":"nope"}`, want: "'questions' must be an array"},
		{body: `{}`, want: "'questions' must be an array"},
		{body: `{"questions":[{"text":"ok"},{"text":""}]}`, want: "Question 1: Question text is required"},
	}
	for _, tc := range cases {
		rr := do(t, handler, http.MethodPost, "/answers", tc.body)
		require.Equal(t, http.StatusBadRequest, rr.Code, tc.body)
		assert.Equal(t, tc.want, decodeBody(t, rr)["error"], tc.body)
	}
}

func TestAnswersUpstreamFailureIs502(t *testing.T) {
	gateway := &stubGateway{err: &inference.UpstreamError{StatusCode: 500, Message: "provider down"}}
	handler, store := newTestServer(t, gateway, Options{})

	rr := do(t, handler, http.MethodPost, "/answers", `{"questions":[{"text":"q"}]}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "provider down")
	assert.Equal(t, 0, store.Len())
}

func TestSearchReturnsCachedEntriesNewestFirst(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})

	for _, text := range []string{"capital of France", "capital of Japan", "favorite color"} {
		rr := do(t, handler, http.MethodPost, "/answer", `{"question":{"text":"`+text+`","type":"short_answer"}}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := do(t, handler, http.MethodGet, "/jphw/search?question=capital&limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Results []answercache.Entry `json:"results"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Question, "capital")

	rr = do(t, handler, http.MethodGet, "/search?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSplitChoices(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitChoices([]string{"a, b", " c ", ""}))
	assert.Nil(t, splitChoices(nil))
}

func TestAPIKeyAndRateLimit(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{APIKey: "secret", RateLimitPerMin: 1})
	body := `{"question":{"text":"q"}}`

	rr := do(t, handler, http.MethodPost, "/answer", body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	authed := func() int {
		req := httptest.NewRequest(http.MethodPost, "/jphw/answer", strings.NewReader(body))
		req.Header.Set("X-API-Key", "secret")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, authed())
	assert.Equal(t, http.StatusTooManyRequests, authed())

	// Reads stay open.
	rr = do(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, &stubGateway{}, Options{})
	require.Equal(t, http.StatusOK, do(t, handler, http.MethodPost, "/answer", `{"question":{"text":"q"}}`).Code)

	rr := do(t, handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `formfill_answer_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, rr.Body.String(), "formfill_inference_duration_seconds")
}
