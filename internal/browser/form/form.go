// Package form reads the current state of HTML form controls the way a
// browser would report it, without any script engine.
package form

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/bindpad/internal/browser/dom"
)

// ErrInvalidRoot is returned when a Form is built over something that is not
// an element subtree.
var ErrInvalidRoot = errors.New("form root must be an element or document node")

// FieldKind classifies a control by how its value is read.
type FieldKind int

const (
	// FieldText covers every control whose value is its raw string.
	FieldText FieldKind = iota
	FieldCheckbox
	FieldRadio
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldCheckbox:
		return "checkbox"
	case FieldRadio:
		return "radio"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Value is the current value of one named field.
type Value struct {
	Kind FieldKind
	// Text holds a text value or the value of the checked radio.
	Text string
	// Checked is the state of a lone checkbox.
	Checked bool
	// Values lists the checked values of a checkbox group in document order.
	// It is non-nil exactly when several checkboxes share the name.
	Values []string
	// Null marks a radio group with nothing checked.
	Null bool
}

// String returns the textual value, or "" for non-text values.
func (v Value) String() string {
	if v.Kind == FieldCheckbox {
		return ""
	}
	return v.Text
}

// Bool returns the state of a lone checkbox; false for anything else.
func (v Value) Bool() bool {
	return v.Kind == FieldCheckbox && v.Values == nil && v.Checked
}

// List returns the checked values of a checkbox group, or nil.
func (v Value) List() []string {
	if !v.IsGroup() {
		return nil
	}
	return v.Values
}

// IsGroup reports whether the value came from a checkbox group.
func (v Value) IsGroup() bool {
	return v.Kind == FieldCheckbox && v.Values != nil
}

// Form extracts values from the controls under a root node.
type Form struct {
	root *html.Node
	doc  *dom.Document
}

// New builds a Form over root. The caller must hold whatever lock protects
// the tree while calling Field or Snapshot.
func New(root *html.Node) (*Form, error) {
	if root == nil || (root.Type != html.ElementNode && root.Type != html.DocumentNode) {
		return nil, ErrInvalidRoot
	}
	return &Form{root: root}, nil
}

// Of builds a Form over a node owned by doc; reads take the document lock.
func Of(doc *dom.Document, root *html.Node) (*Form, error) {
	if doc == nil {
		return nil, ErrInvalidRoot
	}
	f, err := New(root)
	if err != nil {
		return nil, err
	}
	f.doc = doc
	return f, nil
}

// Select resolves selector in doc and builds a Form over the match.
func Select(doc *dom.Document, selector string) (*Form, error) {
	if doc == nil {
		return nil, ErrInvalidRoot
	}
	root, err := doc.Find(selector)
	if err != nil {
		return nil, fmt.Errorf("form not found: %w", err)
	}
	return Of(doc, root)
}

// Root returns the node the form reads from.
func (f *Form) Root() *html.Node {
	return f.root
}

func (f *Form) read(fn func()) {
	if f.doc == nil {
		fn()
		return
	}
	f.doc.View(func(*html.Node) { fn() })
}

// Field returns the value of the named field. The second result is false
// when no control carries the name.
func (f *Form) Field(name string) (Value, bool) {
	var (
		v  Value
		ok bool
	)
	f.read(func() {
		v, ok = fieldValue(collect(f.root, name))
	})
	return v, ok
}

// Snapshot reads every named control in document order. The first control
// seen for a name decides how the name is read; radios are only recorded
// when one of them is checked.
func (f *Form) Snapshot() Snapshot {
	snap := make(Snapshot)
	f.read(func() {
		groups := make(map[string][]*html.Node)
		var order []string
		walk(f.root, func(n *html.Node) {
			name, ok := attr(n, "name")
			if !ok || name == "" {
				return
			}
			if _, seen := groups[name]; !seen {
				order = append(order, name)
			}
			groups[name] = append(groups[name], n)
		})

		for _, name := range order {
			v, ok := fieldValue(groups[name])
			if !ok || (v.Kind == FieldRadio && v.Null) {
				continue
			}
			snap[name] = v
		}
	})
	return snap
}

// fieldValue applies the per-kind reading rule to the controls sharing a name.
func fieldValue(fields []*html.Node) (Value, bool) {
	if len(fields) == 0 {
		return Value{}, false
	}

	kind := kindOf(fields[0])
	switch kind {
	case FieldRadio:
		for _, n := range fields {
			if kindOf(n) == FieldRadio && checked(n) {
				return Value{Kind: FieldRadio, Text: controlValue(n)}, true
			}
		}
		return Value{Kind: FieldRadio, Null: true}, true

	case FieldCheckbox:
		if len(fields) > 1 {
			values := []string{}
			for _, n := range fields {
				if kindOf(n) == FieldCheckbox && checked(n) {
					values = append(values, controlValue(n))
				}
			}
			return Value{Kind: FieldCheckbox, Values: values}, true
		}
		return Value{Kind: FieldCheckbox, Checked: checked(fields[0])}, true

	case FieldText:
		return Value{Kind: FieldText, Text: controlValue(fields[0])}, true

	default:
		panic(fmt.Sprintf("form: unhandled field kind %s", kind))
	}
}

// collect returns the named controls under root in document order.
func collect(root *html.Node, name string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if v, ok := attr(n, "name"); ok && v == name {
			out = append(out, n)
		}
	})
	return out
}

// walk visits input and textarea elements under root in document order.
func walk(root *html.Node, visit func(*html.Node)) {
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "input" || c.Data == "textarea") {
				visit(c)
			}
			rec(c)
		}
	}
	rec(root)
}

func kindOf(n *html.Node) FieldKind {
	if n.Data != "input" {
		return FieldText
	}
	t, _ := attr(n, "type")
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "checkbox":
		return FieldCheckbox
	case "radio":
		return FieldRadio
	default:
		return FieldText
	}
}

// controlValue mirrors the DOM value property: textareas report their text,
// checkables default to "on".
func controlValue(n *html.Node) string {
	if n.Data == "textarea" {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return sb.String()
	}
	v, ok := attr(n, "value")
	if !ok && kindOf(n) != FieldText {
		return "on"
	}
	return v
}

func checked(n *html.Node) bool {
	_, ok := attr(n, "checked")
	return ok
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
