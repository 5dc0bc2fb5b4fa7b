package notifier

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canonsync/internal/domain"
)

type staticStream struct {
	events chan domain.SyncCompletedEvent
	err    error
}

func (s *staticStream) SubscribeSyncCompleted(ctx context.Context) (<-chan domain.SyncCompletedEvent, error) {
	return s.events, s.err
}

func TestLogNotifier_LogsEachEvent(t *testing.T) {
	stream := &staticStream{events: make(chan domain.SyncCompletedEvent, 2)}
	tenantID := uuid.New()
	stream.events <- domain.SyncCompletedEvent{TenantID: tenantID, EnvironmentID: "production", Kind: domain.SyncKindRepository, Processed: 3}
	stream.events <- domain.SyncCompletedEvent{TenantID: tenantID, EnvironmentID: "staging", Kind: domain.SyncKindEnvironment, Skipped: 2}
	close(stream.events)

	var lines []string
	n := NewLogNotifier(stream)
	n.logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	require.NoError(t, n.Start(context.Background()))

	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "repository sync for "+tenantID.String()+"/production")
	assert.Contains(t, lines[0], "processed=3")
	assert.Contains(t, lines[1], "environment sync for "+tenantID.String()+"/staging")
	assert.Contains(t, lines[1], "skipped=2")
}

func TestLogNotifier_SubscribeFailure(t *testing.T) {
	stream := &staticStream{err: assert.AnError}

	err := NewLogNotifier(stream).Start(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
