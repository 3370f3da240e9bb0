package taskqueue

import (
	"log"

	"beegreen/internal/notify"

	"github.com/hibiken/asynq"
)

// Workers runs the asynq server delivering queued notifications
type Workers struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewWorkers prepares workers on the Redis at redisAddr
func NewWorkers(redisAddr string, sender notify.Sender) *Workers {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePushNotification, HandlePush(sender))
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{Concurrency: 2})
	return &Workers{srv: srv, mux: mux}
}

// Start starts processing in the background
func (w *Workers) Start() error {
	log.Printf("TASKQUEUE: Starting push workers")
	return w.srv.Start(w.mux)
}

// Stop waits for in-flight deliveries and stops workers
func (w *Workers) Stop() {
	log.Printf("TASKQUEUE: Stopping workers...")
	w.srv.Shutdown()
	log.Printf("TASKQUEUE: Workers stopped")
}
