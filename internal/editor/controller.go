// Package editor keeps an HTML bind list synchronized with a bind store.
// Edits are debounced per bind, normalized at settle time and answered by a
// full re-render of the bind's markup.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/browser/dom"
	"github.com/xkilldash9x/bindpad/internal/browser/form"
)

// Selectors for the fixed parts of the editor page.
const (
	SelectorBinds       = "#main .binds"
	SelectorAddBind     = "#main button.add-bind"
	SelectorPressedCode = "#header #pressed-code"
)

var (
	// ErrNilDependency is returned when a required collaborator is missing.
	ErrNilDependency = errors.New("editor: required dependency is nil")
	// ErrBindRemoved is returned when a store answer arrives for a bind whose
	// node is no longer in the document. The answer is dropped.
	ErrBindRemoved = errors.New("bind is no longer in the document")
	// ErrNotInForm is returned when an input event does not come from a bind form.
	ErrNotInForm = errors.New("event target is not inside a form")
)

// Store is the bind store as seen by the editor. Every call that returns
// markup returns rendered bind fragments.
type Store interface {
	ListBinds(ctx context.Context) ([]string, error)
	AddBind(ctx context.Context) (string, error)
	UpdateBind(ctx context.Context, update schemas.BindUpdate) (string, error)
	RemoveBind(ctx context.Context, id string) error
}

// DefaultDispatchTimeout bounds the store call of one settled edit.
const DefaultDispatchTimeout = 30 * time.Second

// Options tunes a Controller.
type Options struct {
	SettleDelay  time.Duration
	FlushOnClose bool
	// DispatchTimeout bounds each debounced store call. Zero means
	// DefaultDispatchTimeout.
	DispatchTimeout time.Duration
}

// Controller owns the bind list region of a document.
type Controller struct {
	doc       *dom.Document
	store     Store
	clipboard Clipboard
	debouncer *Debouncer
	logger    *zap.Logger
	opts      Options

	// ctx bounds the store calls of debounced edits.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewController wires a Controller. The clipboard may be nil, in which case
// copy requests are logged and ignored.
func NewController(doc *dom.Document, store Store, clipboard Clipboard, logger *zap.Logger, opts Options) (*Controller, error) {
	if doc == nil || store == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.Named("controller")
	return &Controller{
		doc:       doc,
		store:     store,
		clipboard: clipboard,
		debouncer: NewDebouncer(opts.SettleDelay, logger),
		logger:    logger,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Document returns the document the controller edits.
func (c *Controller) Document() *dom.Document {
	return c.doc
}

// List fetches every bind and appends its markup to the list, in store order.
func (c *Controller) List(ctx context.Context) error {
	fragments, err := c.store.ListBinds(ctx)
	if err != nil {
		c.logger.Error("Failed to list binds", zap.Error(err))
		return fmt.Errorf("failed to list binds: %w", err)
	}
	container, err := c.doc.Find(SelectorBinds)
	if err != nil {
		return err
	}
	for _, markup := range fragments {
		if _, err := c.doc.InsertAdjacentHTML(container, dom.BeforeEnd, markup); err != nil {
			return fmt.Errorf("failed to insert bind: %w", err)
		}
	}
	c.logger.Debug("Listed binds", zap.Int("count", len(fragments)))
	return nil
}

// Add creates a bind in the store and appends its markup at the end of the list.
func (c *Controller) Add(ctx context.Context) error {
	markup, err := c.store.AddBind(ctx)
	if err != nil {
		c.logger.Error("Failed to add bind", zap.Error(err))
		return fmt.Errorf("failed to add bind: %w", err)
	}
	container, err := c.doc.Find(SelectorBinds)
	if err != nil {
		return err
	}
	if _, err := c.doc.InsertAdjacentHTML(container, dom.BeforeEnd, markup); err != nil {
		return fmt.Errorf("failed to insert bind: %w", err)
	}
	return nil
}

// Update saves the update and replaces the bind's node with the returned
// markup. When the node has been removed meanwhile the markup is dropped.
func (c *Controller) Update(ctx context.Context, update schemas.BindUpdate) error {
	markup, err := c.store.UpdateBind(ctx, update)
	if err != nil {
		c.logger.Error("Failed to update bind", zap.String("bind_id", update.ID), zap.Error(err))
		return fmt.Errorf("failed to update bind %s: %w", update.ID, err)
	}

	node, err := c.bindNode(update.ID)
	if err != nil {
		return err
	}
	if node == nil {
		c.logger.Warn("Dropping update for a removed bind", zap.String("bind_id", update.ID))
		return ErrBindRemoved
	}
	if _, err := c.doc.ReplaceOuterHTML(node, markup); err != nil {
		if errors.Is(err, dom.ErrDetached) {
			c.logger.Warn("Dropping update for a removed bind", zap.String("bind_id", update.ID))
			return ErrBindRemoved
		}
		return fmt.Errorf("failed to replace bind %s: %w", update.ID, err)
	}
	return nil
}

// Remove deletes the bind from the store and then drops its node. On store
// failure the node and any pending edit are left in place.
func (c *Controller) Remove(ctx context.Context, id string) error {
	if err := c.store.RemoveBind(ctx, id); err != nil {
		c.logger.Error("Failed to remove bind", zap.String("bind_id", id), zap.Error(err))
		return fmt.Errorf("failed to remove bind %s: %w", id, err)
	}
	c.debouncer.Cancel(id)
	node, err := c.bindNode(id)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	if err := c.doc.Remove(node); err != nil && !errors.Is(err, dom.ErrDetached) {
		return err
	}
	return nil
}

// HandleInput reacts to an input event on target. It snapshots the
// enclosing form now and schedules the update for when the bind settles.
func (c *Controller) HandleInput(target *html.Node) error {
	formNode := c.doc.Closest(target, "form")
	if formNode == nil {
		return ErrNotInForm
	}
	f, err := form.Of(c.doc, formNode)
	if err != nil {
		return err
	}
	snap := f.Snapshot()
	id, ok := snap.Text(FieldID)
	if !ok || id == "" {
		return ErrMissingID
	}

	c.debouncer.Schedule(id, func() { c.dispatch(id, snap) })
	if ce := c.logger.Check(zap.DebugLevel, "Scheduled bind edit"); ce != nil {
		var path string
		c.doc.View(func(*html.Node) { path = dom.NodePath(target) })
		ce.Write(zap.String("bind_id", id), zap.String("target", path))
	}
	return nil
}

func (c *Controller) dispatch(id string, snap form.Snapshot) {
	update, err := Normalize(snap)
	if err != nil {
		c.logger.Warn("Discarding edit", zap.String("bind_id", id), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.DispatchTimeout)
	defer cancel()
	if err := c.Update(ctx, update); err != nil && !errors.Is(err, ErrBindRemoved) {
		c.logger.Debug("Debounced update failed", zap.String("bind_id", id), zap.Error(err))
	}
}

type clickAction int

const (
	clickNone clickAction = iota
	clickRemove
	clickAdd
	clickCopy
)

// HandleClick reacts to a click on target: a remove control deletes its
// bind, the add button creates one and the pressed-code field is copied.
func (c *Controller) HandleClick(ctx context.Context, target *html.Node) error {
	action, id := clickNone, ""
	c.doc.View(func(*html.Node) {
		for n := target; n != nil && n.Type == html.ElementNode; n = n.Parent {
			switch {
			case n.Data == "button" && hasClass(n, "remove"):
				action, id = clickRemove, htmlquery.SelectAttr(n, "target")
				return
			case n.Data == "button" && hasClass(n, "add-bind"):
				action = clickAdd
				return
			case htmlquery.SelectAttr(n, "id") == "pressed-code":
				action = clickCopy
				return
			}
		}
	})

	switch action {
	case clickRemove:
		if id == "" {
			return ErrMissingID
		}
		return c.Remove(ctx, id)
	case clickAdd:
		return c.Add(ctx)
	case clickCopy:
		copyPressedCode(ctx, c.doc, c.clipboard, c.logger)
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(htmlquery.SelectAttr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

// Pending reports whether an edit for id is waiting to settle.
func (c *Controller) Pending(id string) bool {
	return c.debouncer.Pending(id)
}

// Close stops scheduling. Pending edits are dispatched first when
// FlushOnClose is set and dropped otherwise. Without FlushOnClose, store calls
// already running are cancelled; with it, each may run up to DispatchTimeout.
// Close returns once every running dispatch has returned.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		if c.opts.FlushOnClose {
			if n := c.debouncer.Flush(); n > 0 {
				c.logger.Info("Flushed pending edits", zap.Int("count", n))
			}
		}
		c.debouncer.Stop()
		if !c.opts.FlushOnClose {
			c.cancel()
		}
		c.debouncer.Wait()
		c.cancel()
	})
	return nil
}

func (c *Controller) bindNode(id string) (*html.Node, error) {
	sel, err := BindSelector(id)
	if err != nil {
		return nil, err
	}
	return c.doc.QuerySelector(sel)
}

// BindSelector returns a selector matching the fragment of bind id inside
// the bind list.
func BindSelector(id string) (string, error) {
	switch {
	case !strings.Contains(id, `"`):
		return SelectorBinds + ` .bind[bind-id="` + id + `"]`, nil
	case !strings.Contains(id, "'"):
		return SelectorBinds + ` .bind[bind-id='` + id + `']`, nil
	default:
		return "", fmt.Errorf("bind id %q cannot be selected", id)
	}
}
