package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/youssefsiam38/contextpg/driver/pgxv5"
	"github.com/youssefsiam38/contextpg/internal/testutil"
)

func TestIntegration_NotifierRoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	n := FromDriver(pgxv5.New(db.Pool), &Config{ReconnectDelay: 100 * time.Millisecond})

	events := make(chan *Event, 1)
	n.Subscribe(EventCompaction, func(event *Event) {
		select {
		case events <- event:
		default:
		}
	})

	if err := n.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = n.Stop(ctx) }()

	// LISTEN is issued asynchronously; keep notifying until one arrives.
	deadline := time.After(5 * time.Second)
	for {
		if err := n.Notify(ctx, EventCompaction, "session-42"); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		select {
		case event := <-events:
			if event.SessionID != "session-42" {
				t.Errorf("SessionID = %q, want session-42", event.SessionID)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no notification received")
		}
	}
}
