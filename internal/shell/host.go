package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/internal/bus"
	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/editor"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
	// Upper bound for one store call made on behalf of a shell.
	invokeTimeout = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The host listens on loopback by default and shells are local processes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Host serves the bind store to editor shells and pushes capture events to
// all of them.
type Host struct {
	store  editor.Store
	bus    *bus.EventBus
	events <-chan bus.Message
	cfg    config.ShellConfig
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*hostClient]struct{}
	// wg tracks client pumps so Close can wait for them.
	wg sync.WaitGroup
}

// hostClient is one connected shell.
type hostClient struct {
	id   string
	host *Host
	conn *websocket.Conn
	// Buffered channel of outbound messages.
	send      chan Envelope
	closeOnce sync.Once
}

// NewHost builds a Host and subscribes it to capture events. Call Run to
// start forwarding them.
func NewHost(store editor.Store, eb *bus.EventBus, cfg config.ShellConfig, logger *zap.Logger) (*Host, error) {
	if store == nil || eb == nil {
		return nil, editor.ErrNilDependency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	events, _ := eb.Subscribe(bus.TypePressedCode, bus.TypeBindTriggered)
	return &Host{
		store:   store,
		bus:     eb,
		events:  events,
		cfg:     cfg,
		logger:  logger.Named("shell_host"),
		clients: make(map[*hostClient]struct{}),
	}, nil
}

type healthStatus struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// Router returns the HTTP routes of the host: /healthz and the /ws endpoint.
func (h *Host) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(healthStatus{Status: "ok", Clients: h.ClientCount()}); err != nil {
			h.logger.Warn("Failed to write health status", zap.Error(err))
		}
	})
	r.Get("/ws", h.handleWS)
	return r
}

// ClientCount returns the number of connected shells.
func (h *Host) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run forwards pressed-code and bind-triggered events to every shell until
// the bus shuts down.
func (h *Host) Run(ctx context.Context) {
	h.logger.Info("Shell host forwarding events.")
	defer h.logger.Info("Shell host stopped forwarding events.")

	for msg := range h.events {
		if ctx.Err() == nil {
			h.forward(msg)
		}
		h.bus.Acknowledge(msg)
	}
}

func (h *Host) forward(msg bus.Message) {
	env, ok, err := eventEnvelope(msg)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.Error(err))
		return
	}
	if !ok {
		h.logger.Warn("Not forwarding event with unexpected payload", zap.String("type", string(msg.Type)))
		return
	}
	h.Broadcast(env)
}

// Broadcast queues env on every client. Clients whose buffer is full are
// disconnected.
func (h *Host) Broadcast(env Envelope) {
	var slow []*hostClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow shell client", zap.String("client_id", c.id))
		h.unregister(c)
	}
}

// Serve listens on cfg.ListenAddr until ctx is done, then shuts down the
// server and disconnects every shell.
func (h *Host) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.cfg.ListenAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("Shell host listening", zap.String("address", h.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.Close()
			return fmt.Errorf("shell host failed: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	h.Close()
	return nil
}

// Close disconnects every shell and waits for their pumps to exit.
func (h *Host) Close() {
	h.mu.RLock()
	clients := make([]*hostClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
	h.wg.Wait()
}

func (h *Host) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered with an HTTP error.
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	c := &hostClient{
		id:   uuid.NewString(),
		host: h,
		conn: conn,
		send: make(chan Envelope, h.cfg.SendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("Shell connected.", zap.String("client_id", c.id), zap.String("remote_addr", r.RemoteAddr))

	h.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

func (h *Host) unregister(c *hostClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.closeOnce.Do(func() { close(c.send) })
		h.logger.Info("Shell disconnected.", zap.String("client_id", c.id))
	}
}

// reply queues a result. It gives up if the client went away meanwhile.
func (c *hostClient) reply(env Envelope) {
	c.host.mu.RLock()
	defer c.host.mu.RUnlock()
	if _, ok := c.host.clients[c]; !ok {
		return
	}
	select {
	case c.send <- env:
	default:
		c.host.logger.Warn("Result dropped, shell send buffer full", zap.String("client_id", c.id), zap.String("request_id", env.ID))
	}
}

// readPump handles requests from the shell. Each request runs on its own
// goroutine so a slow store call does not block the connection.
func (c *hostClient) readPump() {
	var inflight sync.WaitGroup
	defer func() {
		c.host.unregister(c)
		c.conn.Close()
		inflight.Wait()
		c.host.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.host.logger.Warn("Shell read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.host.logger.Error("Failed to decode shell message", zap.Error(err), zap.ByteString("message", data))
			continue
		}
		if env.Type != TypeInvoke {
			c.host.logger.Debug("Ignoring non-invoke message", zap.String("type", string(env.Type)))
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
			defer cancel()
			c.reply(c.host.invoke(ctx, env))
		}()
	}
}

// writePump is the only writer of the connection.
func (c *hostClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.host.wg.Done()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				c.host.logger.Error("Failed to encode envelope", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// invoke runs one request against the store and builds its result.
func (h *Host) invoke(ctx context.Context, env Envelope) Envelope {
	log := h.logger.With(zap.String("request_id", env.ID), zap.String("cmd", env.Cmd))

	var (
		data interface{}
		err  error
	)
	switch env.Cmd {
	case CmdGetBinds:
		data, err = h.store.ListBinds(ctx)
	case CmdAddBind:
		data, err = h.store.AddBind(ctx)
	case CmdUpdateBind:
		var args UpdateArgs
		if err = json.Unmarshal(env.Args, &args); err != nil {
			err = fmt.Errorf("bad update_bind arguments: %w", err)
			break
		}
		data, err = h.store.UpdateBind(ctx, args.Data)
	case CmdRemoveBind:
		var args RemoveArgs
		if err = json.Unmarshal(env.Args, &args); err != nil {
			err = fmt.Errorf("bad remove_bind arguments: %w", err)
			break
		}
		err = h.store.RemoveBind(ctx, args.ID)
	default:
		err = fmt.Errorf("unknown command %q", env.Cmd)
	}

	if err != nil {
		log.Error("Request failed", zap.Error(err))
		return resultErr(env.ID, err)
	}
	res, err := resultOK(env.ID, data)
	if err != nil {
		log.Error("Failed to encode result", zap.Error(err))
		return resultErr(env.ID, err)
	}
	log.Debug("Request served")
	return res
}
