package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/VenkatGGG/formfill/internal/question"
	"github.com/VenkatGGG/formfill/pkg/httpx"
)

const maxRequestBody = 1 << 20

type answerResponse struct {
	Answer string `json:"answer"`
}

type batchAnswerResponse struct {
	Answers []string `json:"answers"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	fields, err := decodeObject(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	raw, ok := fields["question"]
	if !ok {
		s.writeRequestError(w, &question.ValidationError{Message: "Missing question payload"})
		return
	}
	payload, err := question.ParsePayload(raw)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}

	answers, err := s.answers.AnswerBatch(r.Context(), []question.Payload{payload})
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, answerResponse{Answer: answers[0].Text})
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	fields, err := decodeObject(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	var items []json.RawMessage
	if raw, ok := fields["questions"]; !ok || json.Unmarshal(raw, &items) != nil || items == nil {
		s.writeRequestError(w, &question.ValidationError{Message: "'questions' must be an array"})
		return
	}
	if len(items) == 0 {
		s.writeRequestError(w, &question.ValidationError{Message: "'questions' array cannot be empty"})
		return
	}

	payloads := make([]question.Payload, len(items))
	for i, item := range items {
		payload, err := question.ParsePayload(item)
		if err != nil {
			s.writeRequestError(w, &question.ValidationError{Message: fmt.Sprintf("Question %d: %s", i, validationMessage(err))})
			return
		}
		payloads[i] = payload
	}

	answers, err := s.answers.AnswerBatch(r.Context(), payloads)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	texts := make([]string, len(answers))
	for i, answer := range answers {
		texts[i] = answer.Text
	}
	httpx.WriteJSON(w, http.StatusOK, batchAnswerResponse{Answers: texts})
}

func decodeObject(r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, &question.ValidationError{Message: "Invalid request"}
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, &question.ValidationError{Message: "Invalid JSON body"}
	}
	if _, ok := value.(map[string]any); !ok {
		return nil, &question.ValidationError{Message: "Request body must be an object"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &question.ValidationError{Message: "Request body must be an object"}
	}
	return fields, nil
}

func validationMessage(err error) string {
	var verr *question.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}

func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
}

// writeUpstreamError reports every answering failure as 502; the request was
// already validated, so what remains is provider or cache trouble.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	s.logger.Error("answering failed", "err", err)
	httpx.WriteError(w, http.StatusBadGateway, "upstream_failed", err.Error())
}
