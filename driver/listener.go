package driver

import "context"

// Notification represents a PostgreSQL NOTIFY notification.
type Notification struct {
	// Channel is the notification channel name.
	Channel string

	// Payload is the notification payload (may be empty).
	Payload string
}

// Listener provides PostgreSQL LISTEN/NOTIFY functionality.
//
// pgx/v5 holds a dedicated pool connection; database/sql uses lib/pq's
// pq.Listener, which manages its own connection and reconnects.
type Listener interface {
	// Listen starts listening on the specified channel.
	Listen(ctx context.Context, channel string) error

	// WaitForNotification waits for a notification on any subscribed channel.
	// Returns an error if the context is cancelled, the connection is lost
	// or the listener is closed.
	WaitForNotification(ctx context.Context) (*Notification, error)

	// Close closes the listener connection.
	Close(ctx context.Context) error
}

// Notification channel names used by contextpg.
const (
	// ChannelCompaction is notified inside the compaction commit transaction,
	// so listeners only observe committed compactions.
	// Payload contains the session ID.
	ChannelCompaction = "contextpg_compaction"
)
