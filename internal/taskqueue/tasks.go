package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"beegreen/internal/notify"

	"github.com/hibiken/asynq"
)

// TypePushNotification is the asynq task type for push deliveries
const TypePushNotification = "notify:push"

// PushTaskPayload for tasks
type PushTaskPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NewPushTask builds a push delivery task
func NewPushTask(title, body string) (*asynq.Task, error) {
	payload, err := json.Marshal(PushTaskPayload{Title: title, Body: body})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePushNotification, payload), nil
}

// QueueNotifier enqueues notifications so delivery survives restarts and is retried
type QueueNotifier struct {
	client   *asynq.Client
	inflight sync.WaitGroup
}

var _ notify.Notifier = (*QueueNotifier)(nil)

// NewQueueNotifier creates a notifier enqueuing into the Redis at redisAddr
func NewQueueNotifier(redisAddr string) *QueueNotifier {
	return &QueueNotifier{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Notify enqueues a push delivery task in the background. The Redis round
// trip never runs on the caller's goroutine.
func (q *QueueNotifier) Notify(title, body string) {
	task, err := NewPushTask(title, body)
	if err != nil {
		log.Printf("TASKQUEUE: Failed to build push task: %v", err)
		return
	}
	q.inflight.Add(1)
	go func() {
		defer q.inflight.Done()
		info, err := q.client.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(10*time.Second))
		if err != nil {
			log.Printf("TASKQUEUE: Failed to enqueue push %q: %v", title, err)
			return
		}
		log.Printf("TASKQUEUE: Enqueued push task %s (%s)", info.ID, title)
	}()
}

// Close waits for pending enqueues and releases the Redis connection
func (q *QueueNotifier) Close() error {
	q.inflight.Wait()
	return q.client.Close()
}

// HandlePush returns the worker handler delivering push tasks through sender
func HandlePush(sender notify.Sender) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PushTaskPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			log.Printf("TASKQUEUE: Failed to unmarshal push payload: %v", err)
			// malformed payloads never succeed, do not retry them
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err := sender.Send(ctx, payload.Title, payload.Body); err != nil {
			log.Printf("TASKQUEUE: Push %q failed: %v", payload.Title, err)
			return err
		}
		return nil
	}
}
