// Package notifier consumes sync completion events from the event bus and
// surfaces them in the server log. Events arrive from every instance
// sharing the bus, so the log covers syncs this process did not run.
package notifier

import (
	"context"
	"log"

	"canonsync/internal/domain"
)

// EventStream is the subscribing side of the event bus.
type EventStream interface {
	SubscribeSyncCompleted(ctx context.Context) (<-chan domain.SyncCompletedEvent, error)
}

type LogNotifier struct {
	stream EventStream

	// logf is swapped in tests to capture output.
	logf func(format string, args ...any)
}

func NewLogNotifier(stream EventStream) *LogNotifier {
	return &LogNotifier{
		stream: stream,
		logf:   log.Printf,
	}
}

// Start blocks consuming events until the stream closes or ctx is done.
// Call this in main.go as a goroutine.
func (n *LogNotifier) Start(ctx context.Context) error {
	events, err := n.stream.SubscribeSyncCompleted(ctx)
	if err != nil {
		return err
	}
	for event := range events {
		n.logf("Sync completed: %s sync for %s/%s (processed=%d skipped=%d errored=%d)",
			event.Kind, event.TenantID, event.EnvironmentID,
			event.Processed, event.Skipped, event.Errored)
	}
	return nil
}
