// internal/browser/dom/document.go
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Position names where InsertAdjacentHTML places parsed markup.
type Position int

const (
	BeforeBegin Position = iota
	AfterBegin
	BeforeEnd
	AfterEnd
)

func (p Position) String() string {
	switch p {
	case BeforeBegin:
		return "beforebegin"
	case AfterBegin:
		return "afterbegin"
	case BeforeEnd:
		return "beforeend"
	case AfterEnd:
		return "afterend"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// Document owns a parsed HTML tree. Every read and mutation goes through its
// lock, so timers and store callbacks may touch it from any goroutine.
type Document struct {
	mu     sync.RWMutex
	root   *html.Node
	logger *zap.Logger
}

// Parse reads a full HTML document.
func Parse(r io.Reader, logger *zap.Logger) (*Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root, logger: logger.Named("dom")}, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(markup string, logger *zap.Logger) (*Document, error) {
	return Parse(strings.NewReader(markup), logger)
}

// View runs fn with the document read-locked. Code that walks nodes directly
// (such as the form extractor) must run inside View.
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Update runs fn with the document write-locked.
func (d *Document) Update(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// -- Queries --

// QuerySelector returns the first element matching selector, or nil.
func (d *Document) QuerySelector(selector string) (*html.Node, error) {
	return d.QuerySelectorFrom(nil, selector)
}

// QuerySelectorFrom scopes the query to the descendants of from. A nil from
// queries the whole document.
func (d *Document) QuerySelectorFrom(from *html.Node, selector string) (*html.Node, error) {
	xpath, err := TranslateSelector(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if from == nil {
		from = d.root
	} else if strings.HasPrefix(xpath, "/") {
		xpath = "." + xpath
	}
	node, err := htmlquery.Query(from, xpath)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %s: %w", selector, err)
	}
	return node, nil
}

// QuerySelectorAll returns every element matching selector in document order.
func (d *Document) QuerySelectorAll(selector string) ([]*html.Node, error) {
	xpath, err := TranslateSelector(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes, err := htmlquery.QueryAll(d.root, xpath)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %s: %w", selector, err)
	}
	return nodes, nil
}

// Find is QuerySelector that treats a miss as an ElementNotFoundError.
func (d *Document) Find(selector string) (*html.Node, error) {
	node, err := d.QuerySelector(selector)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, NewElementNotFoundError(selector)
	}
	return node, nil
}

// Closest walks up from n (inclusive) to the nearest element with the given tag.
func (d *Document) Closest(n *html.Node, tag string) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			return cur
		}
	}
	return nil
}

// Contains reports whether n is still attached under the document root.
func (d *Document) Contains(n *html.Node) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.attached(n)
}

func (d *Document) attached(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

// -- Attributes and values --

// Attr returns the value of key on n, or "" if it is not set.
func (d *Document) Attr(n *html.Node, key string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return htmlquery.SelectAttr(n, key)
}

// HasAttr reports whether key is present on n, even with an empty value.
func (d *Document) HasAttr(n *html.Node, key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

// HasClass reports whether n carries class in its class attribute.
func (d *Document) HasClass(n *html.Node, class string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range strings.Fields(htmlquery.SelectAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute.
func (d *Document) SetAttr(n *html.Node, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setAttr(n, key, value)
}

// RemoveAttr deletes an attribute if present.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removeAttr(n, key)
}

// Value returns the current value of a form control: the value attribute for
// inputs and the text content for textareas.
func (d *Document) Value(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n.Type == html.ElementNode && n.Data == "textarea" {
		return htmlquery.InnerText(n)
	}
	return htmlquery.SelectAttr(n, "value")
}

// SetValue overwrites the value of a form control.
func (d *Document) SetValue(n *html.Node, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n.Type == html.ElementNode && n.Data == "textarea" {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
		return
	}
	setAttr(n, "value", value)
}

// SetChecked toggles the checked state of a checkbox or radio. Checking a
// radio unchecks the other radios of the same name in the same form.
func (d *Document) SetChecked(n *html.Node, checked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !checked {
		removeAttr(n, "checked")
		return
	}
	if strings.EqualFold(htmlquery.SelectAttr(n, "type"), "radio") {
		name := htmlquery.SelectAttr(n, "name")
		scope := n
		for scope.Parent != nil && !(scope.Type == html.ElementNode && scope.Data == "form") {
			scope = scope.Parent
		}
		for _, other := range htmlquery.Find(scope, ".//input[@type='radio']") {
			if other != n && htmlquery.SelectAttr(other, "name") == name {
				removeAttr(other, "checked")
			}
		}
	}
	setAttr(n, "checked", "")
}

// -- Mutations --

// InsertAdjacentHTML parses markup and inserts the resulting nodes relative
// to target. It returns the inserted top-level nodes.
func (d *Document) InsertAdjacentHTML(target *html.Node, pos Position, markup string) ([]*html.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached(target) {
		return nil, ErrDetached
	}

	context := target
	if pos == BeforeBegin || pos == AfterEnd {
		context = target.Parent
		if context == nil || context.Type != html.ElementNode {
			return nil, fmt.Errorf("cannot insert %s a node without an element parent", pos)
		}
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	switch pos {
	case BeforeBegin:
		for _, n := range nodes {
			target.Parent.InsertBefore(n, target)
		}
	case AfterBegin:
		first := target.FirstChild
		for _, n := range nodes {
			target.InsertBefore(n, first)
		}
	case BeforeEnd:
		for _, n := range nodes {
			target.AppendChild(n)
		}
	case AfterEnd:
		next := target.NextSibling
		for _, n := range nodes {
			target.Parent.InsertBefore(n, next)
		}
	default:
		return nil, fmt.Errorf("unknown insert position %s", pos)
	}
	return nodes, nil
}

// ReplaceOuterHTML swaps target, including its subtree, for the parsed markup.
func (d *Document) ReplaceOuterHTML(target *html.Node, markup string) ([]*html.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached(target) || target.Parent == nil {
		return nil, ErrDetached
	}
	parent := target.Parent
	context := parent
	if context.Type != html.ElementNode {
		context = nil
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	for _, n := range nodes {
		parent.InsertBefore(n, target)
	}
	parent.RemoveChild(target)
	return nodes, nil
}

// Remove detaches target from the document.
func (d *Document) Remove(target *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached(target) || target.Parent == nil {
		return ErrDetached
	}
	target.Parent.RemoveChild(target)
	return nil
}

// -- Serialization --

// OuterHTML renders n and its subtree.
func (d *Document) OuterHTML(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		d.logger.Warn("Failed to render node", zap.Error(err))
		return ""
	}
	return sb.String()
}

// InnerText returns the concatenated text under n.
func (d *Document) InnerText(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return htmlquery.InnerText(n)
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}
