package databasesql

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/youssefsiam38/contextpg/driver"
)

// ErrListenerClosed is returned when the listener has been closed.
var ErrListenerClosed = errors.New("databasesql: listener closed")

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// GetListener creates a lib/pq listener on its own connection.
func (d *Driver) GetListener(ctx context.Context) (driver.Listener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Listener{
		pql: pq.NewListener(d.connStr, minReconnectInterval, maxReconnectInterval, nil),
	}, nil
}

// Listener implements driver.Listener using pq.Listener.
type Listener struct {
	pql *pq.Listener
}

// Listen starts listening on the specified channel.
func (l *Listener) Listen(_ context.Context, channel string) error {
	return l.pql.Listen(channel)
}

// WaitForNotification blocks until a notification arrives or ctx is done.
// pq delivers a nil notification after a reconnect; those are skipped.
func (l *Listener) WaitForNotification(ctx context.Context) (*driver.Notification, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case n, ok := <-l.pql.Notify:
			if !ok {
				return nil, ErrListenerClosed
			}
			if n == nil {
				continue
			}
			return &driver.Notification{Channel: n.Channel, Payload: n.Extra}, nil
		case <-time.After(pingInterval):
			if err := l.pql.Ping(); err != nil {
				return nil, err
			}
		}
	}
}

// Close closes the listener connection.
func (l *Listener) Close(context.Context) error {
	return l.pql.Close()
}

// Compile-time check
var _ driver.Listener = (*Listener)(nil)
