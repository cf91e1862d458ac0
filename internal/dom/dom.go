// Package dom is the rendering-engine boundary. Form logic talks only to these
// interfaces; internal/cdp satisfies them against a live browser and domtest
// against an in-memory document.
package dom

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrNoElement is returned by element operations on a locator that matches
// nothing.
var ErrNoElement = errors.New("no element matches locator")

type ClickOptions struct {
	// Force skips the visibility check and dispatches the click directly.
	Force   bool
	Timeout time.Duration
}

type Page interface {
	// Locator resolves selector against the whole document.
	Locator(selector string) Locator
	Navigate(ctx context.Context, url string) error
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	Screenshot(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// Locator is a lazy query. Nothing is resolved until an operation runs, so a
// locator stays valid across re-renders.
type Locator interface {
	// Locator resolves selector among the descendants of every match.
	Locator(selector string) Locator
	Nth(index int) Locator
	// Parent walks up levels ancestors from every match.
	Parent(levels int) Locator
	// WithText keeps matches whose rendered text matches pattern.
	WithText(pattern *regexp.Regexp) Locator

	Count(ctx context.Context) (int, error)
	// Text is the rendered text of the first match.
	Text(ctx context.Context) (string, error)
	// Attribute reads name from the first match; ok is false when unset.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Click(ctx context.Context, opts ClickOptions) error
	Fill(ctx context.Context, value string) error
	WaitVisible(ctx context.Context, timeout time.Duration) error
}
