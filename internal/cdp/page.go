package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/VenkatGGG/formfill/internal/artifact"
	"github.com/VenkatGGG/formfill/internal/dom"
)

const (
	defaultActionTimeout = 5 * time.Second
	defaultLoadTimeout   = 30 * time.Second
	networkQuietWindow   = 500 * time.Millisecond
)

// Page implements dom.Page over a Client. Locators compile to a step list
// that an injected resolver walks on every operation, so they never hold
// stale node references.
type Page struct {
	client  *Client
	release func(ctx context.Context) error
	logger  *slog.Logger
}

// NewPage wraps client. release, when set, runs after the websocket closes
// and is where the owning browser gets shut down.
func NewPage(client *Client, release func(ctx context.Context) error, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{client: client, release: release, logger: logger}
}

func (p *Page) Locator(selector string) dom.Locator {
	return &locator{page: p, steps: []step{{Selector: selector}}}
}

// Navigate loads url and waits for the document to finish loading.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.client.Navigate(ctx, url); err != nil {
		return err
	}
	return p.poll(ctx, defaultLoadTimeout, func(ctx context.Context) (bool, error) {
		var state string
		if err := p.client.Evaluate(ctx, "document.readyState", &state); err != nil {
			return false, err
		}
		return state == "complete", nil
	})
}

// WaitNetworkIdle waits until the document is loaded and no new resource
// entries have appeared for a quiet window.
func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	const probe = `({state: document.readyState, resources: performance.getEntriesByType("resource").length})`

	lastCount := -1
	var stableSince time.Time
	return p.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		var snapshot struct {
			State     string `json:"state"`
			Resources int    `json:"resources"`
		}
		if err := p.client.Evaluate(ctx, probe, &snapshot); err != nil {
			return false, err
		}
		if snapshot.State != "complete" || snapshot.Resources != lastCount {
			lastCount = snapshot.Resources
			stableSince = time.Now()
			return false, nil
		}
		return time.Since(stableSince) >= networkQuietWindow, nil
	})
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	data, err := p.client.CaptureScreenshot(ctx)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return artifact.WriteBase64(path, data)
}

func (p *Page) Close(ctx context.Context) error {
	err := p.client.Close()
	if p.release != nil {
		err = errors.Join(err, p.release(ctx))
	}
	return err
}

// poll runs check until it reports true, fails, or timeout elapses. check
// gets the caller's context: cancelling a websocket read tears the
// connection down, so the timeout is enforced between checks instead.
func (p *Page) poll(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

type step struct {
	Selector string `json:"selector,omitempty"`
	Nth      *int   `json:"nth,omitempty"`
	Parent   int    `json:"parent,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Flags    string `json:"flags,omitempty"`
}

type operation struct {
	Name  string `json:"name"`
	Arg   string `json:"arg,omitempty"`
	Force bool   `json:"force,omitempty"`
}

type opResult struct {
	Found   bool            `json:"found"`
	Visible bool            `json:"visible"`
	Value   json.RawMessage `json:"value"`
}

type locator struct {
	page  *Page
	steps []step
}

func (l *locator) with(s step) *locator {
	steps := make([]step, len(l.steps), len(l.steps)+1)
	copy(steps, l.steps)
	return &locator{page: l.page, steps: append(steps, s)}
}

func (l *locator) Locator(selector string) dom.Locator { return l.with(step{Selector: selector}) }
func (l *locator) Nth(index int) dom.Locator           { return l.with(step{Nth: &index}) }
func (l *locator) Parent(levels int) dom.Locator       { return l.with(step{Parent: levels}) }

func (l *locator) WithText(pattern *regexp.Regexp) dom.Locator {
	source, flags := jsPattern(pattern)
	return l.with(step{Pattern: source, Flags: flags})
}

// jsPattern translates a Go regexp into a JavaScript source and flags. Only
// a leading (?i) needs translating for the patterns form pages use.
func jsPattern(pattern *regexp.Regexp) (string, string) {
	source := pattern.String()
	if rest, ok := strings.CutPrefix(source, "(?i)"); ok {
		return rest, "i"
	}
	return source, ""
}

func (l *locator) run(ctx context.Context, op operation) (opResult, error) {
	steps, err := json.Marshal(l.steps)
	if err != nil {
		return opResult{}, err
	}
	expression := fmt.Sprintf("(%s)(%s, %s)", resolverScript, steps, mustMarshal(op))
	var result opResult
	if err := l.page.client.Evaluate(ctx, expression, &result); err != nil {
		return opResult{}, err
	}
	return result, nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	result, err := l.run(ctx, operation{Name: "count"})
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(result.Value, &n); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return n, nil
}

func (l *locator) Text(ctx context.Context) (string, error) {
	result, err := l.run(ctx, operation{Name: "text"})
	if err != nil {
		return "", err
	}
	if !result.Found {
		return "", dom.ErrNoElement
	}
	var text string
	if err := json.Unmarshal(result.Value, &text); err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return text, nil
}

func (l *locator) Attribute(ctx context.Context, name string) (string, bool, error) {
	result, err := l.run(ctx, operation{Name: "attribute", Arg: name})
	if err != nil {
		return "", false, err
	}
	if !result.Found {
		return "", false, dom.ErrNoElement
	}
	var value *string
	if err := json.Unmarshal(result.Value, &value); err != nil {
		return "", false, fmt.Errorf("decode attribute: %w", err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// Click waits for the first match to exist and, unless forced, to be
// visible, then clicks it.
func (l *locator) Click(ctx context.Context, opts dom.ClickOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return l.page.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		result, err := l.run(ctx, operation{Name: "click", Force: opts.Force})
		if err != nil {
			return false, err
		}
		return result.Found && (opts.Force || result.Visible), nil
	})
}

// Fill focuses the first match, clears it and types value.
func (l *locator) Fill(ctx context.Context, value string) error {
	err := l.page.poll(ctx, defaultActionTimeout, func(ctx context.Context) (bool, error) {
		result, err := l.run(ctx, operation{Name: "focus"})
		if err != nil {
			return false, err
		}
		return result.Found && result.Visible, nil
	})
	if err != nil {
		return err
	}
	return l.page.client.InsertText(ctx, value)
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return l.page.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		result, err := l.run(ctx, operation{Name: "visible"})
		if err != nil {
			return false, err
		}
		return result.Found && result.Visible, nil
	})
}

// resolverScript walks a step list from the document and applies one
// operation to the result. Click and focus act only when the target is
// actionable, so callers can poll them.
const resolverScript = `(steps, op) => {
	const isVisible = (el) => {
		if (!el || !el.isConnected) return false;
		const style = window.getComputedStyle(el);
		if (!style || style.display === "none" || style.visibility === "hidden") return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const unique = (list) => Array.from(new Set(list));
	let nodes = [document];
	for (const s of steps) {
		if (s.selector !== undefined) {
			nodes = unique(nodes.flatMap((n) => Array.from(n.querySelectorAll(s.selector))));
		} else if (s.nth !== undefined) {
			nodes = s.nth < nodes.length ? [nodes[s.nth]] : [];
		} else if (s.parent !== undefined) {
			nodes = unique(nodes.map((n) => {
				let cur = n;
				for (let i = 0; i < s.parent && cur; i++) cur = cur.parentElement;
				return cur;
			}).filter(Boolean));
		} else if (s.pattern !== undefined) {
			const re = new RegExp(s.pattern, s.flags || "");
			nodes = nodes.filter((n) => re.test(n.innerText || n.textContent || ""));
		}
	}
	if (op.name === "count") return {found: nodes.length > 0, visible: false, value: nodes.length};
	const el = nodes[0];
	if (!el) return {found: false, visible: false, value: null};
	const visible = isVisible(el);
	switch (op.name) {
	case "text":
		return {found: true, visible, value: el.innerText || el.textContent || ""};
	case "attribute":
		return {found: true, visible, value: el.getAttribute(op.arg)};
	case "click":
		if (visible || op.force) {
			el.scrollIntoView({block: "center", inline: "center"});
			if (typeof el.focus === "function") el.focus();
			el.click();
		}
		return {found: true, visible, value: null};
	case "focus":
		if (visible) {
			el.scrollIntoView({block: "center", inline: "center"});
			el.focus();
			if ("value" in el) {
				el.value = "";
				el.dispatchEvent(new Event("input", {bubbles: true}));
			}
		}
		return {found: true, visible, value: null};
	default:
		return {found: true, visible, value: null};
	}
}`
