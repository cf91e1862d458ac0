package answercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VenkatGGG/formfill/internal/question"
)

const redisFetchChunk = 200

// RedisStore keeps one JSON value per fingerprint plus a sorted set ordered by
// creation time, which Search walks newest-first.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "formfill:answers"
	}
	return &RedisStore{
		client: client,
		prefix: normalized,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) Get(ctx context.Context, fingerprint question.Fingerprint) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("answer cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	var previous *Entry
	if existing, ok, err := s.Get(ctx, entry.Fingerprint); err != nil {
		return err
	} else if ok {
		previous = &existing
	}
	prepared, err := prepare(entry, previous, s.now())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(prepared)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(prepared.Fingerprint), raw, 0)
		pipe.ZAddNX(ctx, s.recentKey(), redis.Z{
			Score:  float64(prepared.CreatedAt.UnixMilli()),
			Member: string(prepared.Fingerprint),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("answer cache put: %w", err)
	}
	return nil
}

func (s *RedisStore) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	filters = filters.normalized()
	members, err := s.client.ZRevRange(ctx, s.recentKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("answer cache search: %w", err)
	}

	matched := make([]Entry, 0)
	for start := 0; start < len(members); start += redisFetchChunk {
		end := start + redisFetchChunk
		if end > len(members) {
			end = len(members)
		}
		keys := make([]string, 0, end-start)
		for _, member := range members[start:end] {
			keys = append(keys, s.entryKey(question.Fingerprint(member)))
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("answer cache search: %w", err)
		}
		for _, value := range values {
			raw, ok := value.(string)
			if !ok {
				continue
			}
			var entry Entry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				return nil, fmt.Errorf("decode cache entry: %w", err)
			}
			if filters.matches(entry) {
				matched = append(matched, entry)
			}
		}
	}
	return page(matched, filters), nil
}

func (s *RedisStore) entryKey(fingerprint question.Fingerprint) string {
	return s.prefix + ":entry:" + string(fingerprint)
}

func (s *RedisStore) recentKey() string {
	return s.prefix + ":recent"
}
