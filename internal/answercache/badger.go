package answercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/VenkatGGG/formfill/internal/question"
)

const badgerKeyPrefix = "answer:"

// BadgerStore keeps entries in an embedded badger database, one JSON value per
// fingerprint. Search scans the key prefix.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

type BadgerOptions struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := strings.TrimSpace(opts.Dir)
		if dir == "" {
			return nil, errors.New("badger dir is required")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	bopts = bopts.WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Get(ctx context.Context, fingerprint question.Fingerprint) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		got, ok, err := readBadgerEntry(txn, fingerprint)
		entry, found = got, ok
		return err
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("badger get: %w", err)
	}
	return entry, found, nil
}

func (s *BadgerStore) Put(ctx context.Context, entry Entry) error {
	var err error
	// Concurrent writers of one fingerprint conflict; last write wins, so retry.
	for attempt := 0; attempt < 3; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			existing, ok, err := readBadgerEntry(txn, entry.Fingerprint)
			if err != nil {
				return err
			}
			var previous *Entry
			if ok {
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
			return txn.Set(badgerKey(prepared.Fingerprint), raw)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err == nil || errors.Is(err, ErrFingerprintRequired) {
		return err
	}
	return fmt.Errorf("badger put: %w", err)
}

func (s *BadgerStore) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	filters = filters.normalized()
	var matched []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode cache entry: %w", err)
			}
			if filters.matches(entry) {
				matched = append(matched, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger search: %w", err)
	}
	return page(matched, filters), nil
}

func readBadgerEntry(txn *badger.Txn, fingerprint question.Fingerprint) (Entry, bool, error) {
	item, err := txn.Get(badgerKey(fingerprint))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func badgerKey(fingerprint question.Fingerprint) []byte {
	return []byte(badgerKeyPrefix + string(fingerprint))
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
