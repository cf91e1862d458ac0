package answercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/VenkatGGG/formfill/internal/question"
)

// FileStore persists the whole cache as one JSON document. Every Put rewrites
// the document through a temp file and rename, so a crash never leaves a torn
// file behind.
type FileStore struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[question.Fingerprint]Entry
}

type fileDocument struct {
	Entries []Entry `json:"entries"`
}

func NewFileStore(path string) (*FileStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("cache file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	s := &FileStore{
		path:    trimmed,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[question.Fingerprint]Entry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode cache file: %w", err)
	}
	for _, entry := range doc.Entries {
		if entry.Fingerprint == "" {
			continue
		}
		s.entries[entry.Fingerprint] = entry
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, fingerprint question.Fingerprint) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fingerprint]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (s *FileStore) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *Entry
	if existing, ok := s.entries[entry.Fingerprint]; ok {
		previous = &existing
	}
	prepared, err := prepare(entry, previous, s.now())
	if err != nil {
		return err
	}
	s.entries[prepared.Fingerprint] = prepared
	if err := s.flushLocked(); err != nil {
		if previous != nil {
			s.entries[prepared.Fingerprint] = *previous
		} else {
			delete(s.entries, prepared.Fingerprint)
		}
		return err
	}
	return nil
}

func (s *FileStore) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters = filters.normalized()
	s.mu.RLock()
	matched := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if filters.matches(entry) {
			matched = append(matched, cloneEntry(entry))
		}
	}
	s.mu.RUnlock()
	return page(matched, filters), nil
}

func (s *FileStore) flushLocked() error {
	doc := fileDocument{Entries: make([]Entry, 0, len(s.entries))}
	for _, entry := range s.entries {
		doc.Entries = append(doc.Entries, entry)
	}
	sortNewest(doc.Entries)

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("write cache tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit cache file: %w", err)
	}
	return nil
}
