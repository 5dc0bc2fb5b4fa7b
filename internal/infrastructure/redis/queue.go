package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"canonsync/internal/domain"
)

type SyncJobQueue struct {
	client    *redis.Client
	queueName string
}

func NewSyncJobQueue(client *redis.Client) *SyncJobQueue {
	return &SyncJobQueue{
		client:    client,
		queueName: "canonsync:queue:jobs",
	}
}

// Push adds a sync job to the end of the list
func (q *SyncJobQueue) Push(ctx context.Context, job domain.SyncJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.queueName, payload).Err()
}

// Pop waits for a job and removes it from the front of the list
func (q *SyncJobQueue) Pop(ctx context.Context) (domain.SyncJob, error) {
	var job domain.SyncJob
	// 0 means "wait until an item appears"; ctx cancellation still
	// interrupts the blocking call.
	result, err := q.client.BLPop(ctx, 0*time.Second, q.queueName).Result()
	if err != nil {
		return job, err
	}
	// BLPop returns a slice: [QueueName, Element]
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return job, err
	}
	return job, nil
}
