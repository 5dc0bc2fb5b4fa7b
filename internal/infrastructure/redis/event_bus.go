package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"canonsync/internal/domain"
)

type SyncEventBus struct {
	client  *redis.Client
	channel string
}

func NewSyncEventBus(client *redis.Client) *SyncEventBus {
	return &SyncEventBus{
		client:  client,
		channel: "canonsync:events:sync-completed",
	}
}

// PublishSyncCompleted broadcasts the outcome of a sync pass so external
// consumers can react without polling the mapping tables.
func (b *SyncEventBus) PublishSyncCompleted(ctx context.Context, event domain.SyncCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// SubscribeSyncCompleted opens a continuous stream of completion events.
func (b *SyncEventBus) SubscribeSyncCompleted(ctx context.Context) (<-chan domain.SyncCompletedEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	msgChan := make(chan domain.SyncCompletedEvent)
	go func() {
		defer close(msgChan)
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			var event domain.SyncCompletedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err == nil {
				select {
				case msgChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgChan, nil
}
