package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/VenkatGGG/formfill/internal/answercache"
	"github.com/VenkatGGG/formfill/pkg/httpx"
)

type searchResponse struct {
	Results []answercache.Entry `json:"results"`
	Count   int                 `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	query := r.URL.Query()
	filters := answercache.SearchFilters{
		TextQuery: strings.TrimSpace(query.Get("question")),
		ImageHash: strings.TrimSpace(query.Get("image_hash")),
		Choices:   splitChoices(query["choices"]),
	}

	var err error
	if filters.Limit, err = nonNegativeInt(query.Get("limit"), 50); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	if filters.Offset, err = nonNegativeInt(query.Get("offset"), 0); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return
	}

	results, err := s.answers.Search(r.Context(), filters)
	if err != nil {
		s.logger.Error("cache search failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

// splitChoices accepts both repeated and comma-separated choices parameters.
func splitChoices(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func nonNegativeInt(raw string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return 0, strconv.ErrSyntax
	}
	return parsed, nil
}
