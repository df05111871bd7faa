// Package memory provides a bounded in-memory job queue for local
// development and tests. Delivery is at-least-once: a nacked message is
// redelivered until its delivery count is exhausted, then parked on the
// dead-letter side channel.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berginj/glovebrand/internal/branding"
)

type envelope struct {
	msg        branding.Message
	deliveries int
}

// Queue is a channel-backed branding.Queue.
type Queue struct {
	ch            chan envelope
	maxDeliveries int

	mu          sync.Mutex
	deadLetters []branding.DeadLetter
	closed      bool
}

// New constructs a queue with the provided capacity. Messages nacked
// maxDeliveries times move to the dead-letter list.
func New(capacity, maxDeliveries int) *Queue {
	if capacity <= 0 {
		capacity = 128
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &Queue{
		ch:            make(chan envelope, capacity),
		maxDeliveries: maxDeliveries,
	}
}

// Send enqueues the message or returns once the context ends.
func (q *Queue) Send(ctx context.Context, msg branding.Message) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- envelope{msg: msg}:
		return nil
	}
}

// Receive delivers messages to handle until the context finishes. A non-nil
// handler error requeues the message; exhausted messages dead-letter.
func (q *Queue) Receive(ctx context.Context, handle func(context.Context, branding.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-q.ch:
			if !ok {
				return nil
			}
			env.deliveries++
			env.msg.Attempt = env.deliveries
			if err := handle(ctx, env.msg); err != nil {
				q.redeliver(env, err)
			}
		}
	}
}

func (q *Queue) redeliver(env envelope, cause error) {
	if env.deliveries >= q.maxDeliveries {
		q.park(env, cause.Error())
		return
	}
	select {
	case q.ch <- env:
	default:
		// Queue full; park the message rather than block the receiver.
		q.park(env, "redelivery dropped: queue full")
	}
}

func (q *Queue) park(env envelope, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, branding.DeadLetter{
		Message:       env.msg,
		Reason:        reason,
		DeliveryCount: env.deliveries,
		EnqueuedAt:    time.Now().UTC(),
	})
}

// Stats reports exact depths; the memory provider can always count.
func (q *Queue) Stats(_ context.Context) (branding.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return branding.QueueStats{
		Provider:    "memory",
		Active:      len(q.ch),
		DeadLetters: len(q.deadLetters),
	}, nil
}

// PeekDeadLetters returns up to limit parked messages without removing them.
func (q *Queue) PeekDeadLetters(_ context.Context, limit int) ([]branding.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.deadLetters) {
		limit = len(q.deadLetters)
	}
	out := make([]branding.DeadLetter, limit)
	copy(out, q.deadLetters[:limit])
	return out, nil
}

// RequeueDeadLetters moves up to limit parked messages back onto the queue
// with a fresh delivery count, returning the requeued messages.
func (q *Queue) RequeueDeadLetters(ctx context.Context, limit int) ([]branding.Message, error) {
	q.mu.Lock()
	if limit <= 0 || limit > len(q.deadLetters) {
		limit = len(q.deadLetters)
	}
	batch := make([]branding.DeadLetter, limit)
	copy(batch, q.deadLetters[:limit])
	q.deadLetters = q.deadLetters[limit:]
	q.mu.Unlock()

	var requeued []branding.Message
	for _, dl := range batch {
		msg := dl.Message
		msg.Attempt = 0
		if err := q.Send(ctx, msg); err != nil {
			return requeued, err
		}
		requeued = append(requeued, msg)
	}
	return requeued, nil
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
