package answercache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/VenkatGGG/formfill/internal/question"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

var ErrFingerprintRequired = errors.New("fingerprint is required")

// Entry is a cached answer. Question, ImageHash and Choices are kept for audit
// and search only; lookups go through Fingerprint.
type Entry struct {
	Fingerprint   question.Fingerprint `json:"fingerprint"`
	Answer        string               `json:"answer"`
	AnswerIndex   *int                 `json:"answer_index,omitempty"`
	ExtractedText string               `json:"extracted_text,omitempty"`
	Question      string               `json:"question,omitempty"`
	ImageHash     string               `json:"image_hash,omitempty"`
	Choices       []string             `json:"choices,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type SearchFilters struct {
	TextQuery string
	ImageHash string
	Choices   []string
	Limit     int
	Offset    int
}

// Store maps fingerprints to entries. Put is an upsert: the value is
// overwritten, the creation time of an existing entry is kept. Implementations
// must allow concurrent Puts for different fingerprints.
type Store interface {
	Get(ctx context.Context, fingerprint question.Fingerprint) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Search(ctx context.Context, filters SearchFilters) ([]Entry, error)
}

func (f SearchFilters) normalized() SearchFilters {
	f.TextQuery = strings.TrimSpace(f.TextQuery)
	f.ImageHash = strings.TrimSpace(f.ImageHash)
	f.Choices = question.NormalizeChoices(f.Choices)
	if f.Limit <= 0 {
		f.Limit = defaultSearchLimit
	}
	if f.Limit > maxSearchLimit {
		f.Limit = maxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// matches is the in-process equivalent of the relational search: every query
// term must occur in the question text, image hash and choice set match exactly.
func (f SearchFilters) matches(entry Entry) bool {
	if f.TextQuery != "" {
		haystack := strings.ToLower(entry.Question)
		for _, term := range searchTerms(f.TextQuery) {
			if !strings.Contains(haystack, term) {
				return false
			}
		}
	}
	if f.ImageHash != "" && entry.ImageHash != f.ImageHash {
		return false
	}
	if len(f.Choices) > 0 && !sameStrings(question.NormalizeChoices(entry.Choices), f.Choices) {
		return false
	}
	return true
}

func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return strings.ContainsRune(" \t\n\r.,;:!?\"'()[]{}", r)
	})
	return fields
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// page sorts newest-first and applies offset/limit.
func page(entries []Entry, f SearchFilters) []Entry {
	sortNewest(entries)
	if f.Offset >= len(entries) {
		return []Entry{}
	}
	entries = entries[f.Offset:]
	if len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries
}

func sortNewest(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
}

// prepare validates an entry and stamps its timestamps against the previous
// version, if any.
func prepare(entry Entry, previous *Entry, now time.Time) (Entry, error) {
	entry.Fingerprint = question.Fingerprint(strings.TrimSpace(string(entry.Fingerprint)))
	if entry.Fingerprint == "" {
		return Entry{}, ErrFingerprintRequired
	}
	entry = cloneEntry(entry)
	entry.Choices = question.NormalizeChoices(entry.Choices)
	entry.UpdatedAt = now
	switch {
	case previous != nil && !previous.CreatedAt.IsZero():
		entry.CreatedAt = previous.CreatedAt
	case entry.CreatedAt.IsZero():
		entry.CreatedAt = now
	}
	return entry, nil
}

func cloneEntry(entry Entry) Entry {
	cloned := entry
	if entry.AnswerIndex != nil {
		index := *entry.AnswerIndex
		cloned.AnswerIndex = &index
	}
	if entry.Choices != nil {
		cloned.Choices = append([]string(nil), entry.Choices...)
	}
	return cloned
}
