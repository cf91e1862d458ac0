package answercache

import (
	"context"
	"errors"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/VenkatGGG/formfill/internal/question"
)

// HotStore fronts a slower backend with a bounded LRU of recently read
// entries. Writes always reach the backend before the hot copy is dropped.
type HotStore struct {
	backend Store
	hot     *lru.Cache[question.Fingerprint, Entry]
}

func NewHotStore(backend Store, size int) (*HotStore, error) {
	if backend == nil {
		return nil, errors.New("hot store backend is required")
	}
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[question.Fingerprint, Entry](size)
	if err != nil {
		return nil, err
	}
	return &HotStore{backend: backend, hot: cache}, nil
}

func (s *HotStore) Get(ctx context.Context, fingerprint question.Fingerprint) (Entry, bool, error) {
	if entry, ok := s.hot.Get(fingerprint); ok {
		return cloneEntry(entry), true, nil
	}
	entry, ok, err := s.backend.Get(ctx, fingerprint)
	if err != nil || !ok {
		return entry, ok, err
	}
	s.hot.Add(fingerprint, cloneEntry(entry))
	return entry, true, nil
}

func (s *HotStore) Put(ctx context.Context, entry Entry) error {
	if err := s.backend.Put(ctx, entry); err != nil {
		return err
	}
	s.hot.Remove(entry.Fingerprint)
	return nil
}

func (s *HotStore) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	return s.backend.Search(ctx, filters)
}

func (s *HotStore) Close() error {
	s.hot.Purge()
	if closer, ok := s.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
