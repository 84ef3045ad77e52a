package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrQueueFull is returned when the mail queue cannot take more work.
var ErrQueueFull = errors.New("mail queue is full")

// Queue decouples callers from mail delivery. SendMail never blocks: it
// enqueues or fails with ErrQueueFull. Run drains the queue into the next
// Sender, one message at a time, each with its own timeout.
type Queue struct {
	next        Sender
	ch          chan Mail
	log         *slog.Logger
	sendTimeout time.Duration
}

// NewQueue returns a Queue holding up to size pending messages.
func NewQueue(next Sender, size int, log *slog.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{next: next, ch: make(chan Mail, size), log: log, sendTimeout: 5 * time.Second}
}

func (q *Queue) SendMail(_ context.Context, m Mail) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued mail until ctx is done, then flushes what is left.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return
		case m := <-q.ch:
			q.deliver(m)
		}
	}
}

func (q *Queue) flush() {
	for {
		select {
		case m := <-q.ch:
			q.deliver(m)
		default:
			return
		}
	}
}

func (q *Queue) deliver(m Mail) {
	ctx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
	defer cancel()
	if err := q.next.SendMail(ctx, m); err != nil {
		q.log.Warn("mail delivery failed", "to", m.To, "subject", m.Subject, "err", err)
	}
}
