package question

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Fingerprint is the hex SHA-256 of a canonical projection. It is the answer
// cache's primary key.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Canonical is the normalized projection of a Payload. Field order is fixed by
// the struct so the serialized form is stable.
type Canonical struct {
	Text      string   `json:"text"`
	Images    []string `json:"images,omitempty"`
	ImageHash string   `json:"image_hash,omitempty"`
	Choices   []string `json:"choices,omitempty"`
	Kind      Kind     `json:"type"`
}

// Canonicalize trims and lower-cases the text, sorts the non-blank image URLs
// and choices, and omits choices entirely when none survive trimming.
func Canonicalize(p Payload) Canonical {
	return Canonical{
		Text:    strings.ToLower(strings.TrimSpace(p.Text)),
		Images:  sortedNonBlank(p.ImageURLs),
		Choices: sortedNonBlank(p.Choices),
		Kind:    p.Kind,
	}
}

// WithImageHash swaps the URL list for a content hash so that URLs pointing at
// identical bytes canonicalize together.
func (c Canonical) WithImageHash(hash string) Canonical {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return c
	}
	c.Images = nil
	c.ImageHash = hash
	return c
}

func (c Canonical) Fingerprint() Fingerprint {
	raw, err := json.Marshal(c)
	if err != nil {
		// Canonical holds only strings; Marshal cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FingerprintOf is Canonicalize(p).Fingerprint().
func FingerprintOf(p Payload) Fingerprint {
	return Canonicalize(p).Fingerprint()
}

// NormalizeChoices applies the canonical choice normalization on its own. It is
// used for exact choice-set matching in cache search.
func NormalizeChoices(choices []string) []string {
	return sortedNonBlank(choices)
}

func sortedNonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
