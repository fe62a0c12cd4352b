package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/internal/browser/dom"
)

// Clipboard receives text copied out of the editor.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// CommandClipboard pipes copied text into an external program such as
// "wl-copy" or "xclip -selection clipboard".
type CommandClipboard struct {
	name string
	args []string
}

// NewCommandClipboard splits command on whitespace into a program and its arguments.
func NewCommandClipboard(command string) (*CommandClipboard, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("clipboard command is empty")
	}
	return &CommandClipboard{name: fields[0], args: fields[1:]}, nil
}

// WriteText runs the command with text on its standard input.
func (c *CommandClipboard) WriteText(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clipboard command %s failed: %w (%s)", c.name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// MemoryClipboard keeps the last copied text in memory. It backs headless
// sessions where no system clipboard exists.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

// WriteText implements Clipboard.
func (m *MemoryClipboard) WriteText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

// Text returns the last copied text.
func (m *MemoryClipboard) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// copyPressedCode writes the displayed trigger code to clip. Failures are
// only logged.
func copyPressedCode(ctx context.Context, doc *dom.Document, clip Clipboard, logger *zap.Logger) {
	field, err := doc.Find(SelectorPressedCode)
	if err != nil {
		logger.Warn("Pressed-code field is missing", zap.Error(err))
		return
	}
	code := doc.Value(field)
	if clip == nil {
		logger.Info("No clipboard configured, not copying", zap.String("code", code))
		return
	}
	if err := clip.WriteText(ctx, code); err != nil {
		logger.Error("Failed to copy code to clipboard", zap.String("code", code), zap.Error(err))
		return
	}
	logger.Debug("Copied code to clipboard", zap.String("code", code))
}
