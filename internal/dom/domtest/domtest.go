// Package domtest is an in-memory dom.Page for tests. Nodes declare the exact
// selector strings they answer to; there is no CSS engine.
package domtest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/VenkatGGG/formfill/internal/dom"
)

type Node struct {
	Selectors []string
	Text      string
	Attrs     map[string]string
	Children  []*Node
	Hidden    bool

	// ClickErrors fails that many clicks before clicks succeed.
	ClickErrors int
	// WaitErrors fails that many WaitVisible calls before the node shows.
	WaitErrors  int
	OnClick     func()

	Value  string
	Clicks int

	parent *Node
}

// El builds a node answering to selectors.
func El(selectors ...string) *Node {
	return &Node{Selectors: selectors, Attrs: map[string]string{}}
}

func (n *Node) WithText(text string) *Node {
	n.Text = text
	return n
}

func (n *Node) WithAttr(name, value string) *Node {
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[name] = value
	return n
}

func (n *Node) Append(children ...*Node) *Node {
	for _, child := range children {
		child.parent = n
		n.Children = append(n.Children, child)
	}
	return n
}

func (n *Node) matches(selector string) bool {
	for _, s := range n.Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

// RenderedText joins the node's own text with its descendants', one per line.
func (n *Node) RenderedText() string {
	parts := make([]string, 0, len(n.Children)+1)
	if text := strings.TrimSpace(n.Text); text != "" {
		parts = append(parts, text)
	}
	for _, child := range n.Children {
		if text := child.RenderedText(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

type Page struct {
	mu   sync.Mutex
	root *Node

	Navigations      []string
	Screenshots      []string
	NetworkIdleCalls int
	NetworkIdleErr   error
	ScreenshotErr    error
	Closed           bool
}

func NewPage(body ...*Node) *Page {
	p := &Page{}
	p.SetBody(body...)
	return p
}

// SetBody replaces the document, as a page transition would.
func (p *Page) SetBody(body ...*Node) {
	root := El()
	root.Append(El("body").Append(body...))
	p.mu.Lock()
	p.root = root
	p.mu.Unlock()
}

func (p *Page) Locator(selector string) dom.Locator {
	return &locator{page: p, steps: []step{{selector: selector}}}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	return nil
}

func (p *Page) WaitNetworkIdle(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NetworkIdleCalls++
	return p.NetworkIdleErr
}

func (p *Page) Screenshot(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return p.ScreenshotErr
	}
	p.Screenshots = append(p.Screenshots, path)
	return nil
}

func (p *Page) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

type step struct {
	selector string
	nth      *int
	parent   int
	pattern  *regexp.Regexp
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

func (l *locator) Locator(selector string) dom.Locator { return l.with(step{selector: selector}) }
func (l *locator) Nth(index int) dom.Locator           { return l.with(step{nth: &index}) }
func (l *locator) Parent(levels int) dom.Locator       { return l.with(step{parent: levels}) }

func (l *locator) WithText(pattern *regexp.Regexp) dom.Locator {
	return l.with(step{pattern: pattern})
}

// resolve must be called with the page lock held.
func (l *locator) resolve() []*Node {
	current := []*Node{l.page.root}
	for _, s := range l.steps {
		switch {
		case s.selector != "":
			var next []*Node
			seen := map[*Node]bool{}
			for _, node := range current {
				for _, match := range descendants(node, s.selector) {
					if !seen[match] {
						seen[match] = true
						next = append(next, match)
					}
				}
			}
			current = next
		case s.nth != nil:
			if *s.nth < 0 || *s.nth >= len(current) {
				current = nil
			} else {
				current = []*Node{current[*s.nth]}
			}
		case s.parent > 0:
			var next []*Node
			seen := map[*Node]bool{}
			for _, node := range current {
				up := node
				for i := 0; i < s.parent && up != nil; i++ {
					up = up.parent
				}
				if up != nil && !seen[up] {
					seen[up] = true
					next = append(next, up)
				}
			}
			current = next
		case s.pattern != nil:
			var next []*Node
			for _, node := range current {
				if s.pattern.MatchString(node.RenderedText()) {
					next = append(next, node)
				}
			}
			current = next
		}
	}
	return current
}

func descendants(node *Node, selector string) []*Node {
	var out []*Node
	for _, child := range node.Children {
		if child.matches(selector) {
			out = append(out, child)
		}
		out = append(out, descendants(child, selector)...)
	}
	return out
}

func (l *locator) first() (*Node, error) {
	nodes := l.resolve()
	if len(nodes) == 0 {
		return nil, dom.ErrNoElement
	}
	return nodes[0], nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	return len(l.resolve()), nil
}

func (l *locator) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	node, err := l.first()
	if err != nil {
		return "", err
	}
	return node.RenderedText(), nil
}

func (l *locator) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	node, err := l.first()
	if err != nil {
		return "", false, err
	}
	value, ok := node.Attrs[name]
	return value, ok, nil
}

func (l *locator) Click(ctx context.Context, opts dom.ClickOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.page.mu.Lock()
	node, err := l.first()
	if err != nil {
		l.page.mu.Unlock()
		return err
	}
	if node.Hidden && !opts.Force {
		l.page.mu.Unlock()
		return errors.New("element is not visible")
	}
	if node.ClickErrors > 0 {
		node.ClickErrors--
		l.page.mu.Unlock()
		return errors.New("click intercepted by another element")
	}
	node.Clicks++
	if _, ok := node.Attrs["aria-checked"]; ok {
		node.Attrs["aria-checked"] = "true"
	}
	onClick := node.OnClick
	l.page.mu.Unlock()

	// Outside the lock: handlers usually swap the page body.
	if onClick != nil {
		onClick()
	}
	return nil
}

func (l *locator) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	node, err := l.first()
	if err != nil {
		return err
	}
	node.Value = value
	return nil
}

func (l *locator) WaitVisible(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	node, err := l.first()
	if err != nil {
		return fmt.Errorf("wait visible: %w", err)
	}
	if node.WaitErrors > 0 {
		node.WaitErrors--
		return errors.New("wait visible: timeout")
	}
	if node.Hidden {
		return errors.New("wait visible: element is hidden")
	}
	return nil
}
