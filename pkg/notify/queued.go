package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-ops-api/pkg/jobs"
)

const reminderJobType = "payment.reminder"

// QueuedSender decouples delivery from the request: Send only enqueues and
// the wrapped sender runs on the job queue with retries.
type QueuedSender struct {
	next  Sender
	queue *jobs.Queue
}

// NewQueuedSender wraps next with an in-memory worker pool.
func NewQueuedSender(next Sender, cfg jobs.QueueConfig) *QueuedSender {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger
	if cfg.OnDrop == nil {
		cfg.OnDrop = func(job jobs.Job, err error) {
			logger.Error("reminder delivery abandoned", zap.String("message_id", job.ID), zap.Error(err))
		}
	}
	qs := &QueuedSender{next: next}
	qs.queue = jobs.NewQueue("reminders-"+next.Name(), qs.deliver, cfg)
	return qs
}

// Start launches the workers.
func (s *QueuedSender) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the workers.
func (s *QueuedSender) Stop() { s.queue.Stop() }

// Pending reports reminders waiting for a worker.
func (s *QueuedSender) Pending() int { return s.queue.Pending() }

// Name identifies the wrapped sender.
func (s *QueuedSender) Name() string { return s.next.Name() }

// Send enqueues msg for asynchronous delivery.
func (s *QueuedSender) Send(_ context.Context, msg Message) error {
	if err := s.queue.Enqueue(jobs.Job{ID: msg.ID, Type: reminderJobType, Payload: msg}); err != nil {
		return fmt.Errorf("enqueue reminder %s: %w", msg.ID, err)
	}
	return nil
}

func (s *QueuedSender) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	return s.next.Send(ctx, msg)
}
