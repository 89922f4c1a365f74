// Package notifier delivers committed compactions to interested processes
// over PostgreSQL LISTEN/NOTIFY.
//
// This package provides:
//   - Automatic listener management with reconnection
//   - Typed event handling
//   - Graceful shutdown
//
// Both drivers support listening: pgx/v5 through a dedicated pool
// connection and database/sql through lib/pq's pq.Listener. The store
// notifies inside the commit transaction, so an event is never observed for
// a compaction that rolled back.
package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/contextpg/driver"
)

// EventType represents the type of event.
type EventType string

// Event types that can be subscribed to.
const (
	// EventCompaction fires once per committed compaction. The payload is
	// the session ID.
	EventCompaction EventType = "compaction"
)

// Event represents a notification event.
type Event struct {
	// Type is the event type.
	Type EventType `json:"type"`

	// SessionID is the session the event concerns.
	SessionID string `json:"session_id"`

	// ReceivedAt is when the event was received.
	ReceivedAt time.Time `json:"received_at"`
}

// Handler is called when an event is received.
type Handler func(event *Event)

// Config holds configuration for the notifier.
type Config struct {
	// ReconnectDelay is how long to wait before reconnecting after a disconnect.
	// Default: 5 seconds
	ReconnectDelay time.Duration

	// OnError is called when an error occurs.
	OnError func(err error)

	// OnReconnect is called when the listener reconnects.
	OnReconnect func()

	// Now overrides time.Now for ReceivedAt.
	Now func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ReconnectDelay: 5 * time.Second,
		Now:            time.Now,
	}
}

var channelToEventType = map[string]EventType{
	driver.ChannelCompaction: EventCompaction,
}

var eventTypeToChannel = map[EventType]string{
	EventCompaction: driver.ChannelCompaction,
}

type subscription struct {
	handler Handler
	id      int64
}

// Notifier provides event notification capabilities.
type Notifier struct {
	getListener func(ctx context.Context) (driver.Listener, error)
	exec        driver.Executor
	config      *Config

	mu            sync.RWMutex
	subscriptions map[EventType][]*subscription
	nextSubID     int64

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewNotifier creates a new notifier.
// getListener opens a fresh listener each time the loop (re)connects; when
// it is nil the notifier is send-only. exec issues pg_notify for Notify and
// may be nil.
func NewNotifier(
	getListener func(ctx context.Context) (driver.Listener, error),
	exec driver.Executor,
	config *Config,
) *Notifier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Notifier{
		getListener:   getListener,
		exec:          exec,
		config:        config,
		subscriptions: make(map[EventType][]*subscription),
	}
}

// FromDriver creates a notifier that listens and notifies through drv.
func FromDriver(drv driver.Driver, config *Config) *Notifier {
	return NewNotifier(drv.GetListener, drv.GetExecutor(), config)
}

// Start begins listening for notifications.
func (n *Notifier) Start(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	n.done = make(chan struct{})
	ctx, n.cancel = context.WithCancel(ctx)
	go n.run(ctx)

	return nil
}

// Stop stops the notifier and waits for the loop to exit.
func (n *Notifier) Stop(ctx context.Context) error {
	if !n.started.Load() {
		return ErrNotStarted
	}

	n.cancel()
	select {
	case <-n.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	n.started.Store(false)
	return nil
}

// Subscribe registers a handler for the given event type.
// Returns a function to unsubscribe.
func (n *Notifier) Subscribe(eventType EventType, handler Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &subscription{handler: handler, id: n.nextSubID}
	n.nextSubID++
	n.subscriptions[eventType] = append(n.subscriptions[eventType], sub)

	return func() {
		n.unsubscribe(eventType, sub.id)
	}
}

func (n *Notifier) unsubscribe(eventType EventType, id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subscriptions[eventType]
	for i, sub := range subs {
		if sub.id == id {
			n.subscriptions[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Notify sends a notification for sessionID.
func (n *Notifier) Notify(ctx context.Context, eventType EventType, sessionID string) error {
	if n.exec == nil {
		return ErrNotifyNotSupported
	}

	channel, ok := eventTypeToChannel[eventType]
	if !ok {
		return ErrUnknownEventType
	}

	_, err := n.exec.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, sessionID)
	return err
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.done)

	for {
		err := n.listenLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && n.config.OnError != nil {
			n.config.OnError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(n.config.ReconnectDelay):
			if n.config.OnReconnect != nil {
				n.config.OnReconnect()
			}
		}
	}
}

// listenLoop creates a listener and processes notifications until an error occurs.
func (n *Notifier) listenLoop(ctx context.Context) error {
	if n.getListener == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	listener, err := n.getListener(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = listener.Close(context.WithoutCancel(ctx)) }()

	for channel := range channelToEventType {
		if err := listener.Listen(ctx, channel); err != nil {
			return err
		}
	}

	for {
		notification, err := listener.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		eventType, ok := channelToEventType[notification.Channel]
		if !ok {
			continue
		}

		n.dispatch(&Event{
			Type:       eventType,
			SessionID:  notification.Payload,
			ReceivedAt: n.config.Now(),
		})
	}
}

// dispatch sends an event to all subscribed handlers.
func (n *Notifier) dispatch(event *Event) {
	n.mu.RLock()
	subs := make([]*subscription, len(n.subscriptions[event.Type]))
	copy(subs, n.subscriptions[event.Type])
	n.mu.RUnlock()

	// Synchronous to keep ordering; handlers should be quick.
	for _, sub := range subs {
		sub.handler(event)
	}
}

// IsRunning returns true if the notifier is running.
func (n *Notifier) IsRunning() bool {
	return n.started.Load()
}
