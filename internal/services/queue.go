package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	webhookQueueKey  = "clerk:webhooks"
	eventClaimPrefix = "clerk:claim:"
)

// claimTTL bounds how long a dead worker can hold an event before the
// retry sweep may pick it up again.
const claimTTL = 5 * time.Minute

// Queue is the Redis-backed dispatch channel between webhook ingestion
// and the reconciliation worker, plus the per-event claim store that
// keeps sweeps and live deliveries from double-processing an event.
type Queue struct {
	client *redis.Client
}

// NewQueue connects to Redis and verifies the connection.
func NewQueue(redisURL string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	return &Queue{client: client}, nil
}

// EnqueueWebhook schedules an event for asynchronous processing.
func (q *Queue) EnqueueWebhook(ctx context.Context, eventID string) error {
	return q.client.LPush(ctx, webhookQueueKey, eventID).Err()
}

// DequeueWebhook blocks up to timeout for the next event id. Returns an
// empty id when the queue stayed empty.
func (q *Queue) DequeueWebhook(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, webhookQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	// BRPOP returns [key, value]
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// ClaimEvent takes a short-lived exclusive lease on an event. Returns
// false when another worker holds it.
func (q *Queue) ClaimEvent(ctx context.Context, eventID string) (bool, error) {
	return q.client.SetNX(ctx, eventClaimPrefix+eventID, time.Now().Unix(), claimTTL).Result()
}

// ReleaseEvent drops the lease taken by ClaimEvent.
func (q *Queue) ReleaseEvent(ctx context.Context, eventID string) error {
	return q.client.Del(ctx, eventClaimPrefix+eventID).Err()
}

// QueueLength reports the number of events waiting to be processed.
func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, webhookQueueKey).Result()
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}
