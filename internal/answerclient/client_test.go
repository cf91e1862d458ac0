package answerclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/formfill/internal/question"
)

func TestAnswerBatchPreservesOrderAndParsesIndexes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jphw/answers", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Questions, 2)
		assert.Equal(t, question.KindRadio, req.Questions[0].Kind)
		_ = json.NewEncoder(w).Encode(map[string]any{"answers": []string{"3", "Tokyo"}})
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL + "/jphw/", APIKey: "secret"})
	answers, err := client.AnswerBatch(context.Background(), []question.Payload{
		{Text: "Pick", ImageURLs: []string{}, Choices: []string{"a", "b", "c"}, Kind: question.KindRadio},
		{Text: "Capital", ImageURLs: []string{}, Kind: question.KindShortAnswer},
	})
	require.NoError(t, err)
	require.Len(t, answers, 2)
	require.NotNil(t, answers[0].Index)
	assert.Equal(t, 3, *answers[0].Index)
	assert.Equal(t, "Tokyo", answers[1].Text)
	assert.Nil(t, answers[1].Index)
}

func TestAnswerBatchEmptyDoesNotContactService(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	answers, err := New(Options{BaseURL: server.URL}).AnswerBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, answers)
	assert.Equal(t, int32(0), hits.Load())
}

func TestAnswerBatchRejectsLengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answers":["only one"]}`))
	}))
	defer server.Close()

	_, err := New(Options{BaseURL: server.URL}).AnswerBatch(context.Background(), []question.Payload{
		{Text: "a", Kind: question.KindShortAnswer},
		{Text: "b", Kind: question.KindShortAnswer},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 answers for 2 questions")
}

func TestAnswerBatchRejectsMissingAnswers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := New(Options{BaseURL: server.URL}).AnswerBatch(context.Background(), []question.Payload{{Text: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'answers'")
}

func TestAnswerBatchSurfacesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"provider down"}`))
	}))
	defer server.Close()

	_, err := New(Options{BaseURL: server.URL}).AnswerBatch(context.Background(), []question.Payload{{Text: "a"}})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, "provider down", upstream.Message)
}

func TestNewStripsTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://example.test/jphw", New(Options{BaseURL: "https://example.test/jphw/"}).BaseURL())
	assert.Equal(t, DefaultBaseURL, New(Options{}).BaseURL())
}
