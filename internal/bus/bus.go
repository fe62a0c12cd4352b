// internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageType names a topic on the bus.
type MessageType string

const (
	// TypePressedCode carries a schemas.PressedCode for every newly captured trigger code.
	TypePressedCode MessageType = "pressed-code"
	// TypeBindTriggered carries the schemas.Bind whose code matched a capture.
	TypeBindTriggered MessageType = "bind-triggered"
)

// ErrShutdown is returned by Post once Shutdown has started.
var ErrShutdown = errors.New("event bus is shut down")

// Message is the envelope delivered to subscribers.
type Message struct {
	ID        string
	Timestamp time.Time
	Type      MessageType
	Payload   interface{}
}

// EventBus fans messages out to subscribers by type. Every delivered message
// must be acknowledged so Shutdown can wait for in-flight handlers.
type EventBus struct {
	logger *zap.Logger

	subscribers map[MessageType][]chan Message
	mu          sync.RWMutex
	bufferSize  int

	// processingWg counts delivered but unacknowledged messages.
	processingWg sync.WaitGroup
	// activePostsWg counts Post calls still attempting delivery.
	activePostsWg sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.Mutex
}

// New creates an EventBus whose subscriber channels hold bufferSize messages.
func New(logger *zap.Logger, bufferSize int) *EventBus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		logger:       logger.Named("event_bus"),
		subscribers:  make(map[MessageType][]chan Message),
		bufferSize:   bufferSize,
		shutdownChan: make(chan struct{}),
	}
}

// Post delivers a message to every current subscriber of msgType. It blocks
// while a subscriber buffer is full, until ctx is done or the bus shuts down.
func (eb *EventBus) Post(ctx context.Context, msgType MessageType, payload interface{}) error {
	eb.shutdownMu.Lock()
	if eb.isShutdown {
		eb.shutdownMu.Unlock()
		return ErrShutdown
	}
	eb.activePostsWg.Add(1)
	eb.shutdownMu.Unlock()
	defer eb.activePostsWg.Done()

	msg := Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      msgType,
		Payload:   payload,
	}

	eb.mu.RLock()
	subscribers := eb.subscribers[msg.Type]
	if len(subscribers) == 0 {
		eb.mu.RUnlock()
		return nil
	}
	subs := make([]chan Message, len(subscribers))
	copy(subs, subscribers)
	eb.mu.RUnlock()

	eb.logger.Debug("Posting message", zap.String("type", string(msg.Type)), zap.String("id", msg.ID), zap.Int("subscribers", len(subs)))

	for _, ch := range subs {
		eb.processingWg.Add(1)
		select {
		case ch <- msg:
		case <-ctx.Done():
			eb.processingWg.Done()
			return ctx.Err()
		case <-eb.shutdownChan:
			eb.processingWg.Done()
			return ErrShutdown
		}
	}
	return nil
}

// Subscribe returns a channel receiving the given types and a function that
// detaches it. The channel is closed by Shutdown, not by the unsubscribe func.
func (eb *EventBus) Subscribe(msgTypes ...MessageType) (<-chan Message, func()) {
	if len(msgTypes) == 0 {
		panic("bus: must subscribe to at least one message type")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.isShutdownLocked() {
		closed := make(chan Message)
		close(closed)
		return closed, func() {}
	}

	ch := make(chan Message, eb.bufferSize)
	types := append([]MessageType(nil), msgTypes...)
	for _, t := range types {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		for _, t := range types {
			subs := eb.subscribers[t]
			for i, sub := range subs {
				if sub != ch {
					continue
				}
				copy(subs[i:], subs[i+1:])
				eb.subscribers[t] = subs[:len(subs)-1]
				if len(eb.subscribers[t]) == 0 {
					delete(eb.subscribers, t)
				}
				break
			}
		}
	}
	return ch, unsubscribe
}

func (eb *EventBus) isShutdownLocked() bool {
	eb.shutdownMu.Lock()
	defer eb.shutdownMu.Unlock()
	return eb.isShutdown
}

// Acknowledge marks a received message as handled.
func (eb *EventBus) Acknowledge(Message) {
	eb.processingWg.Done()
}

// Shutdown stops accepting posts, closes every subscriber channel, drains
// undelivered buffers and waits for handlers to acknowledge what they hold.
func (eb *EventBus) Shutdown() {
	eb.shutdownOnce.Do(func() {
		eb.logger.Debug("Shutting down event bus.")

		eb.shutdownMu.Lock()
		eb.isShutdown = true
		eb.shutdownMu.Unlock()

		close(eb.shutdownChan)
		eb.activePostsWg.Wait()

		eb.mu.Lock()
		unique := make(map[chan Message]struct{})
		for _, subs := range eb.subscribers {
			for _, ch := range subs {
				unique[ch] = struct{}{}
			}
		}
		for ch := range unique {
			close(ch)
		}
		drained := 0
		for ch := range unique {
			for range ch {
				drained++
				eb.processingWg.Done()
			}
		}
		eb.subscribers = make(map[MessageType][]chan Message)
		eb.mu.Unlock()

		if drained > 0 {
			eb.logger.Debug("Drained buffered messages during shutdown.", zap.Int("count", drained))
		}

		eb.processingWg.Wait()
		eb.logger.Debug("Event bus shut down.")
	})
}
