package answercache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/VenkatGGG/formfill/internal/question"
)

const memoryShards = 32

// InMemoryStore keeps entries in sharded maps so writes for different
// fingerprints rarely contend on the same lock.
type InMemoryStore struct {
	shards [memoryShards]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[question.Fingerprint]Entry
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{now: func() time.Time { return time.Now().UTC() }}
	for i := range s.shards {
		s.shards[i].items = make(map[question.Fingerprint]Entry)
	}
	return s
}

func (s *InMemoryStore) shard(fingerprint question.Fingerprint) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return &s.shards[h.Sum32()%memoryShards]
}

func (s *InMemoryStore) Get(_ context.Context, fingerprint question.Fingerprint) (Entry, bool, error) {
	shard := s.shard(fingerprint)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, ok := shard.items[fingerprint]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (s *InMemoryStore) Put(_ context.Context, entry Entry) error {
	shard := s.shard(entry.Fingerprint)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var previous *Entry
	if existing, ok := shard.items[entry.Fingerprint]; ok {
		previous = &existing
	}
	prepared, err := prepare(entry, previous, s.now())
	if err != nil {
		return err
	}
	shard.items[prepared.Fingerprint] = prepared
	return nil
}

func (s *InMemoryStore) Search(_ context.Context, filters SearchFilters) ([]Entry, error) {
	filters = filters.normalized()
	var matched []Entry
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		for _, entry := range shard.items {
			if filters.matches(entry) {
				matched = append(matched, cloneEntry(entry))
			}
		}
		shard.mu.RUnlock()
	}
	return page(matched, filters), nil
}

// Len reports the number of stored entries.
func (s *InMemoryStore) Len() int {
	total := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}
