package answering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/VenkatGGG/formfill/internal/answercache"
	"github.com/VenkatGGG/formfill/internal/inference"
	"github.com/VenkatGGG/formfill/internal/question"
)

// ImageHasher reduces a question's image URLs to one content hash.
type ImageHasher interface {
	HashAll(ctx context.Context, urls []string) (string, error)
}

type Options struct {
	Store   answercache.Store
	Gateway inference.Gateway
	// Hasher is optional; when set, image bytes rather than URLs feed the fingerprint.
	Hasher  ImageHasher
	Metrics *Metrics
	Logger  *slog.Logger
}

// Service answers batches of questions through the cache, calling inference
// at most once per distinct fingerprint.
type Service struct {
	store   answercache.Store
	gateway inference.Gateway
	hasher  ImageHasher
	metrics *Metrics
	logger  *slog.Logger

	inflight singleflight.Group
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("answer cache store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("inference gateway is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   opts.Store,
		gateway: opts.Gateway,
		hasher:  opts.Hasher,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// sharedFlightTimeout bounds one lookup-plus-inference once it no longer
// follows any single caller's context.
const sharedFlightTimeout = 2 * time.Minute

type keyedQuestion struct {
	payload     question.Payload
	fingerprint question.Fingerprint
	imageHash   string
}

func (s *Service) Answer(ctx context.Context, q question.Payload) (question.Answer, error) {
	answers, err := s.AnswerBatch(ctx, []question.Payload{q})
	if err != nil {
		return question.Answer{}, err
	}
	return answers[0], nil
}

// AnswerBatch returns one answer per question, in order. Any failure fails the
// whole batch and no answers are returned.
func (s *Service) AnswerBatch(ctx context.Context, questions []question.Payload) ([]question.Answer, error) {
	if len(questions) == 0 {
		return []question.Answer{}, nil
	}

	keyed := make([]keyedQuestion, len(questions))
	for i, q := range questions {
		keyed[i] = s.key(ctx, q)
	}

	// Same fingerprint within the batch resolves once.
	unique := make(map[question.Fingerprint]int, len(keyed))
	order := make([]question.Fingerprint, 0, len(keyed))
	for i, k := range keyed {
		if _, seen := unique[k.fingerprint]; seen {
			continue
		}
		unique[k.fingerprint] = i
		order = append(order, k.fingerprint)
	}

	resolved := make([]question.Answer, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for slot, fingerprint := range order {
		k := keyed[unique[fingerprint]]
		g.Go(func() error {
			answer, err := s.resolve(gctx, k)
			if err != nil {
				return err
			}
			resolved[slot] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bySlot := make(map[question.Fingerprint]question.Answer, len(order))
	for slot, fingerprint := range order {
		bySlot[fingerprint] = resolved[slot]
	}
	answers := make([]question.Answer, len(keyed))
	for i, k := range keyed {
		answers[i] = cloneAnswer(bySlot[k.fingerprint])
	}
	return answers, nil
}

func (s *Service) key(ctx context.Context, q question.Payload) keyedQuestion {
	canonical := question.Canonicalize(q)
	var imageHash string
	if s.hasher != nil && len(canonical.Images) > 0 {
		hash, err := s.hasher.HashAll(ctx, canonical.Images)
		if err != nil {
			s.logger.Warn("image hashing failed, keying by url", "question", question.Truncate(q.Text, 80), "err", err)
		} else {
			imageHash = hash
			canonical = canonical.WithImageHash(hash)
		}
	}
	return keyedQuestion{payload: q, fingerprint: canonical.Fingerprint(), imageHash: imageHash}
}

// resolve collapses concurrent callers of one fingerprint, across batches too,
// onto a single cache lookup and inference call. The shared call does not
// follow the ctx of the caller that started it; each caller only stops
// waiting when its own ctx ends.
func (s *Service) resolve(ctx context.Context, k keyedQuestion) (question.Answer, error) {
	flight := s.inflight.DoChan(string(k.fingerprint), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFlightTimeout)
		defer cancel()

		entry, ok, err := s.store.Get(ctx, k.fingerprint)
		if err != nil {
			return question.Answer{}, fmt.Errorf("answer cache lookup: %w", err)
		}
		if ok {
			s.metrics.cacheHit()
			s.logger.Debug("answer cache hit", "fingerprint", k.fingerprint.String())
			return question.Answer{Text: entry.Answer, Index: entry.AnswerIndex, ExtractedText: entry.ExtractedText}, nil
		}
		s.metrics.cacheMiss()

		started := time.Now()
		answer, err := s.gateway.Answer(ctx, k.payload)
		s.metrics.observeInference(time.Since(started).Seconds(), err)
		if err != nil {
			s.logger.Error("inference failed", "fingerprint", k.fingerprint.String(), "question", question.Truncate(k.payload.Text, 80), "err", err)
			return question.Answer{}, err
		}

		if err := s.store.Put(ctx, answercache.Entry{
			Fingerprint:   k.fingerprint,
			Answer:        answer.Text,
			AnswerIndex:   answer.Index,
			ExtractedText: answer.ExtractedText,
			Question:      k.payload.Text,
			ImageHash:     k.imageHash,
			Choices:       k.payload.Choices,
		}); err != nil {
			return question.Answer{}, fmt.Errorf("answer cache write: %w", err)
		}
		s.logger.Info("answer cached", "fingerprint", k.fingerprint.String(), "kind", string(k.payload.Kind), "question", question.Truncate(k.payload.Text, 80))
		return answer, nil
	})
	select {
	case result := <-flight:
		if result.Err != nil {
			return question.Answer{}, result.Err
		}
		return result.Val.(question.Answer), nil
	case <-ctx.Done():
		return question.Answer{}, ctx.Err()
	}
}

func cloneAnswer(answer question.Answer) question.Answer {
	if answer.Index != nil {
		index := *answer.Index
		answer.Index = &index
	}
	return answer
}

// Search exposes the cache's audit search.
func (s *Service) Search(ctx context.Context, filters answercache.SearchFilters) ([]answercache.Entry, error) {
	return s.store.Search(ctx, filters)
}
