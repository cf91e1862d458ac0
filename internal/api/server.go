package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/VenkatGGG/formfill/internal/answercache"
	"github.com/VenkatGGG/formfill/internal/question"
	"github.com/VenkatGGG/formfill/pkg/httpx"
)

// Answerer is the answering surface the HTTP layer needs.
type Answerer interface {
	AnswerBatch(ctx context.Context, questions []question.Payload) ([]question.Answer, error)
	Search(ctx context.Context, filters answercache.SearchFilters) ([]answercache.Entry, error)
}

type Options struct {
	Answers Answerer
	Logger  *slog.Logger

	// RoutePrefix mounts every route a second time under this prefix.
	RoutePrefix string

	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler

	APIKey          string
	RateLimitPerMin int
}

type Server struct {
	answers        Answerer
	logger         *slog.Logger
	routePrefix    string
	metricsHandler http.Handler
	requiredAPIKey string
	rateLimiter    *clientRateLimiter
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		answers:        opts.Answers,
		logger:         logger,
		routePrefix:    normalizePrefix(opts.RoutePrefix),
		metricsHandler: opts.MetricsHandler,
		requiredAPIKey: strings.TrimSpace(opts.APIKey),
	}
	if opts.RateLimitPerMin > 0 {
		srv.rateLimiter = newClientRateLimiter(opts.RateLimitPerMin)
	}
	return srv
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "/healthz", s.handleHealth)
	s.handle(mux, "/health", s.handleHealth)
	s.handle(mux, "/answer", s.handleAnswer)
	s.handle(mux, "/answers", s.handleAnswers)
	s.handle(mux, "/search", s.handleSearch)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	mux.HandleFunc("/", s.handleNotFound)

	return withCORS(s.withAPISecurity(mux))
}

func (s *Server) handle(mux *http.ServeMux, path string, handler http.HandlerFunc) {
	mux.HandleFunc(path, handler)
	if s.routePrefix != "" {
		mux.HandleFunc(s.routePrefix+path, handler)
	}
}

// stripPrefix maps a prefixed request path onto its canonical route.
func (s *Server) stripPrefix(path string) string {
	if s.routePrefix != "" && strings.HasPrefix(path, s.routePrefix+"/") {
		return strings.TrimPrefix(path, s.routePrefix)
	}
	return path
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, http.StatusNotFound, "not_found", "Not found")
}

func normalizePrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}
