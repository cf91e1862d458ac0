package question

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const maxImageBytes = 20 << 20

// ImageHasher fetches image bytes and hashes their content, so a question keeps
// its fingerprint when the form re-hosts the same image under a new URL.
type ImageHasher struct {
	client *http.Client
}

func NewImageHasher(timeout time.Duration) *ImageHasher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ImageHasher{client: &http.Client{Timeout: timeout}}
}

// HashURL returns the hex SHA-256 of the bytes served at url.
func (h *ImageHasher) HashURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(url), nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	digest := sha256.New()
	if _, err := io.Copy(digest, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// HashAll hashes every URL. No URLs yield "", one URL yields its own hash, and
// several yield the hash of the concatenated per-image hex digests.
func (h *ImageHasher) HashAll(ctx context.Context, urls []string) (string, error) {
	switch len(urls) {
	case 0:
		return "", nil
	case 1:
		return h.HashURL(ctx, urls[0])
	}

	hashes := make([]string, len(urls))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, url := range urls {
		group.Go(func() error {
			sum, err := h.HashURL(groupCtx, url)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			hashes[i] = sum
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", err
	}

	combined := sha256.Sum256([]byte(strings.Join(hashes, "")))
	return hex.EncodeToString(combined[:]), nil
}
