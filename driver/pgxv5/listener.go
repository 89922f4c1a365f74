package pgxv5

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youssefsiam38/contextpg/driver"
)

// ErrListenerClosed is returned when the listener has been closed.
var ErrListenerClosed = errors.New("pgxv5: listener closed")

// Listener implements driver.Listener on a dedicated pool connection.
type Listener struct {
	mu     sync.Mutex
	conn   *pgxpool.Conn
	closed bool
}

// Listen starts listening on the specified channel.
func (l *Listener) Listen(ctx context.Context, channel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}

	_, err := l.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	return err
}

// WaitForNotification blocks until a notification arrives or ctx is done.
func (l *Listener) WaitForNotification(ctx context.Context) (*driver.Notification, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrListenerClosed
	}
	conn := l.conn
	l.mu.Unlock()

	n, err := conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}
	return &driver.Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

// Close stops listening and returns the connection to the pool.
func (l *Listener) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	// UNLISTEN so the pooled connection doesn't keep delivering to nobody.
	_, err := l.conn.Exec(ctx, "UNLISTEN *")
	l.conn.Release()
	return err
}

// Compile-time check
var _ driver.Listener = (*Listener)(nil)
