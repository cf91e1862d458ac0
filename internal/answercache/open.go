package answercache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Options struct {
	Backend     string
	FilePath    string
	BadgerDir   string
	RedisAddr   string
	RedisPrefix string
	PostgresDSN string
	// HotSize > 0 wraps persistent backends in an LRU hot tier.
	HotSize     int
	Logger      *slog.Logger
}

// Open builds the configured backend. The returned closer releases backend
// resources and is never nil.
func Open(ctx context.Context, opts Options) (Store, io.Closer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store  Store
		closer io.Closer = nopCloser{}
	)
	switch backend := strings.ToLower(strings.TrimSpace(opts.Backend)); backend {
	case "", BackendMemory:
		return NewInMemoryStore(), nopCloser{}, nil
	case BackendFile:
		fileStore, err := NewFileStore(opts.FilePath)
		if err != nil {
			return nil, nil, err
		}
		store = fileStore
	case BackendBadger:
		badgerStore, err := NewBadgerStore(BadgerOptions{Dir: opts.BadgerDir, Logger: logger.With("component", "badger")})
		if err != nil {
			return nil, nil, err
		}
		store, closer = badgerStore, badgerStore
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", opts.RedisAddr, err)
		}
		store, closer = NewRedisStore(client, opts.RedisPrefix), client
	case BackendPostgres:
		pgStore, err := NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store, closer = pgStore, pgStore
	default:
		return nil, nil, fmt.Errorf("unsupported answer cache backend %q", backend)
	}

	if opts.HotSize > 0 {
		hot, err := NewHotStore(store, opts.HotSize)
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		store = hot
	}
	return store, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
