package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/bus"
	"github.com/xkilldash9x/bindpad/internal/config"
)

// Client is an editor shell's connection to the host. It implements
// editor.Store and republishes pushed events on a local bus.
type Client struct {
	conn   *websocket.Conn
	bus    *bus.EventBus
	logger *zap.Logger

	// writeMu serializes writers; gorilla allows one at a time.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	closed  bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to cfg.URL, retrying with exponential backoff for at most
// cfg.DialTimeout. A 4xx answer to the handshake is not retried.
func Dial(ctx context.Context, cfg config.ShellConfig, eb *bus.EventBus, logger *zap.Logger) (*Client, error) {
	if eb == nil {
		return nil, fmt.Errorf("shell client requires an event bus")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("shell_client")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.DialTimeout

	var conn *websocket.Conn
	operation := func() error {
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(fmt.Errorf("host refused the handshake with %s: %w", resp.Status, err))
			}
			logger.Debug("Host not reachable yet, retrying...", zap.String("url", cfg.URL), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to host at %s: %w", cfg.URL, err)
	}

	logger.Info("Connected to host.", zap.String("url", cfg.URL))
	return newClient(conn, eb, logger), nil
}

func newClient(conn *websocket.Conn, eb *bus.EventBus, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		bus:     eb,
		logger:  logger,
		pending: make(map[string]chan Envelope),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection and waits for the read loop to exit. Calls
// still waiting for a result fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.conn.Close()
		c.writeMu.Unlock()
		<-c.done
	})
	return err
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		c.cancel()
		close(c.done)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Connection to host lost", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Error("Failed to decode host message", zap.Error(err))
			continue
		}

		switch env.Type {
		case TypeResult:
			c.deliver(env)
		case TypeEvent:
			msgType, payload, err := decodeEvent(env)
			if err != nil {
				c.logger.Warn("Dropping event", zap.Error(err))
				continue
			}
			if err := c.bus.Post(c.ctx, msgType, payload); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("Failed to post event", zap.String("event", env.Event), zap.Error(err))
			}
		default:
			c.logger.Debug("Ignoring message", zap.String("type", string(env.Type)))
		}
	}
}

func (c *Client) deliver(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[env.ID]
	if !ok {
		c.logger.Debug("Result for an abandoned request", zap.String("request_id", env.ID))
		return
	}
	delete(c.pending, env.ID)
	ch <- env
}

// call sends one request and waits for its result or for ctx.
func (c *Client) call(ctx context.Context, cmd string, args, out interface{}) error {
	env := Envelope{ID: uuid.NewString(), Type: TypeInvoke, Cmd: cmd}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode %s arguments: %w", cmd, err)
	}
	env.Args = raw
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", cmd, err)
	}

	ch := make(chan Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(deadline)
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if !res.OK {
			return &RemoteError{Cmd: cmd, Message: res.Error}
		}
		if out != nil {
			if err := json.Unmarshal(res.Data, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", cmd, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListBinds asks the host for every rendered bind.
func (c *Client) ListBinds(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.call(ctx, CmdGetBinds, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddBind(ctx context.Context) (string, error) {
	var out string
	err := c.call(ctx, CmdAddBind, struct{}{}, &out)
	return out, err
}

func (c *Client) UpdateBind(ctx context.Context, update schemas.BindUpdate) (string, error) {
	var out string
	err := c.call(ctx, CmdUpdateBind, UpdateArgs{Data: update}, &out)
	return out, err
}

func (c *Client) RemoveBind(ctx context.Context, id string) error {
	return c.call(ctx, CmdRemoveBind, RemoveArgs{ID: id}, nil)
}
