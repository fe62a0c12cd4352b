// Package codes turns raw trigger codes captured from a remote receiver into
// bus events.
package codes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/bus"
	"github.com/xkilldash9x/bindpad/internal/config"
)

// ErrNoCaptureFile is returned by Run when codes.file is not configured.
var ErrNoCaptureFile = errors.New("no capture file configured")

// Matcher finds the binds assigned to a code.
type Matcher interface {
	Match(ctx context.Context, code string) ([]schemas.Bind, error)
}

// Reader processes captured codes one line at a time.
//
// A line holding the repeat code re-triggers the binds of the last code that
// allow repeating. Any other code triggers its binds, and a pressed-code
// event is published whenever it differs from the previous code.
type Reader struct {
	cfg     config.CodesConfig
	bus     *bus.EventBus
	matcher Matcher
	logger  *zap.Logger

	// limiter spaces repeat handling by cfg.RepeatInterval.
	limiter *rate.Limiter

	mu       sync.Mutex
	lastCode string
}

// NewReader builds a Reader. A nil matcher publishes pressed-code events only.
func NewReader(cfg config.CodesConfig, eb *bus.EventBus, matcher Matcher, logger *zap.Logger) (*Reader, error) {
	if eb == nil {
		return nil, fmt.Errorf("codes reader requires an event bus")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RepeatInterval > 0 {
		limit = rate.Every(cfg.RepeatInterval)
	}
	return &Reader{
		cfg:     cfg,
		bus:     eb,
		matcher: matcher,
		logger:  logger.Named("codes"),
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// LastCode returns the last accepted non-repeat code.
func (r *Reader) LastCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCode
}

// Run follows cfg.File from its current end until ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	if r.cfg.File == "" {
		return ErrNoCaptureFile
	}
	t, err := tail.TailFile(r.cfg.File, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow capture file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	r.logger.Info("Reading remote inputs..", zap.String("file", r.cfg.File))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				r.logger.Warn("Error reading capture file", zap.Error(line.Err))
				continue
			}
			r.Process(ctx, line.Text)
		}
	}
}

// Process handles one captured line.
func (r *Reader) Process(ctx context.Context, line string) {
	code := strings.TrimSpace(line)
	switch {
	case code == "":
		return
	case r.cfg.Prefix != "" && !strings.HasPrefix(code, r.cfg.Prefix):
		r.logger.Warn("Invalid remote code", zap.String("code", code))
		return
	case r.cfg.RepeatCode != "" && code == r.cfg.RepeatCode:
		r.repeat(ctx)
		return
	}

	r.mu.Lock()
	changed := code != r.lastCode
	r.lastCode = code
	r.mu.Unlock()
	// Any accepted code holds off the next repeat for one interval.
	r.limiter.Reserve()

	if changed {
		r.logger.Info("Pressed button", zap.String("code", code))
		if err := r.bus.Post(ctx, bus.TypePressedCode, schemas.PressedCode{Code: code}); err != nil {
			r.logger.Warn("Failed to publish pressed code", zap.String("code", code), zap.Error(err))
		}
	}
	r.trigger(ctx, code, false)
}

func (r *Reader) repeat(ctx context.Context) {
	if !r.limiter.Allow() {
		return
	}
	last := r.LastCode()
	if last == "" {
		return
	}
	r.trigger(ctx, last, true)
}

// trigger publishes a bind-triggered event for every bind of code. Repeats
// only reach binds with repeating enabled.
func (r *Reader) trigger(ctx context.Context, code string, repeating bool) {
	if r.matcher == nil {
		return
	}
	binds, err := r.matcher.Match(ctx, code)
	if err != nil {
		r.logger.Error("Error with executing bind", zap.String("code", code), zap.Error(err))
		return
	}
	for _, b := range binds {
		if repeating && !b.Repeat {
			continue
		}
		r.logger.Debug("Bind triggered", zap.String("bind_id", b.ID), zap.String("action", b.Action.String()), zap.Bool("repeating", repeating))
		if err := r.bus.Post(ctx, bus.TypeBindTriggered, schemas.BindTrigger{Bind: b, Repeating: repeating}); err != nil {
			r.logger.Warn("Failed to publish bind trigger", zap.String("bind_id", b.ID), zap.Error(err))
		}
	}
}
