package inference

import (
	"context"
	"fmt"

	"github.com/VenkatGGG/formfill/internal/question"
)

// Gateway produces an answer for a question the cache has not seen. It never
// retries; callers own any retry policy.
type Gateway interface {
	Answer(ctx context.Context, q question.Payload) (question.Answer, error)
}

// UpstreamError reports a provider failure: transport error, non-2xx status
// or an empty completion.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("inference upstream failed (%d): %s", e.StatusCode, e.Message)
	}
	return "inference upstream failed: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
