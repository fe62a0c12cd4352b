package editor

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/browser/dom"
	"github.com/xkilldash9x/bindpad/internal/bus"
)

// CodeListener mirrors every captured trigger code into the pressed-code
// field. Only the latest code is shown.
type CodeListener struct {
	doc       *dom.Document
	clipboard Clipboard
	logger    *zap.Logger
	events    <-chan bus.Message
	ack       func(bus.Message)
}

// NewCodeListener subscribes to pressed-code events on eb. Call Run to start
// consuming them.
func NewCodeListener(doc *dom.Document, eb *bus.EventBus, clipboard Clipboard, logger *zap.Logger) (*CodeListener, error) {
	if doc == nil || eb == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	events, _ := eb.Subscribe(bus.TypePressedCode)
	return &CodeListener{
		doc:       doc,
		clipboard: clipboard,
		logger:    logger.Named("code_listener"),
		events:    events,
		ack:       eb.Acknowledge,
	}, nil
}

// Run shows incoming codes until the bus closes the subscription. Once ctx is
// done, events are still acknowledged but no longer shown.
func (l *CodeListener) Run(ctx context.Context) {
	for msg := range l.events {
		if ctx.Err() == nil {
			l.handle(msg)
		}
		l.ack(msg)
	}
}

func (l *CodeListener) handle(msg bus.Message) {
	var code string
	switch p := msg.Payload.(type) {
	case schemas.PressedCode:
		code = p.Code
	case *schemas.PressedCode:
		if p == nil {
			return
		}
		code = p.Code
	default:
		l.logger.Warn("Ignoring pressed-code event with unexpected payload", zap.String("message_id", msg.ID))
		return
	}
	if err := l.Show(code); err != nil {
		l.logger.Warn("Could not show pressed code", zap.String("code", code), zap.Error(err))
	}
}

// Show overwrites the pressed-code field.
func (l *CodeListener) Show(code string) error {
	field, err := l.doc.Find(SelectorPressedCode)
	if err != nil {
		return err
	}
	l.doc.SetValue(field, code)
	return nil
}

// Code returns the code currently shown.
func (l *CodeListener) Code() string {
	field, err := l.doc.Find(SelectorPressedCode)
	if err != nil {
		return ""
	}
	return l.doc.Value(field)
}

// CopyCode writes the shown code to the clipboard. Failures are only logged.
func (l *CodeListener) CopyCode(ctx context.Context) {
	copyPressedCode(ctx, l.doc, l.clipboard, l.logger)
}
