// Package pubsub implements the job queue on Google Cloud Pub/Sub. The
// subscription is expected to carry a dead-letter policy routing exhausted
// deliveries to a second subscription this package can peek and requeue.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
)

// Config names the Pub/Sub resources.
type Config struct {
	ProjectID          string
	TopicID            string
	SubscriptionID     string
	DeadLetterSubID    string
	DeadLetterPeekWait time.Duration
}

// Queue is a branding.Queue backed by one topic and two subscriptions.
type Queue struct {
	client *pubsub.Client
	cfg    Config
	logger *zap.Logger
}

// New connects to Pub/Sub using Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" || cfg.SubscriptionID == "" {
		return nil, branding.NewError(branding.KindInfrastructure, "queue",
			"pubsub project, topic and subscription must be configured", nil)
	}
	if cfg.DeadLetterPeekWait <= 0 {
		cfg.DeadLetterPeekWait = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Queue{client: client, cfg: cfg, logger: logger}, nil
}

func (q *Queue) topicName() string {
	return fmt.Sprintf("projects/%s/topics/%s", q.cfg.ProjectID, q.cfg.TopicID)
}

func (q *Queue) subName(id string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", q.cfg.ProjectID, id)
}

// Send publishes the message and waits for the server acknowledgement so a
// missing topic surfaces immediately as an infrastructure error.
func (q *Queue) Send(ctx context.Context, msg branding.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	publisher := q.client.Publisher(q.topicName())
	result := publisher.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return branding.NewError(branding.KindInfrastructure, "queue", "publish job message", err)
	}
	return nil
}

// Receive pulls messages until the context finishes. Handler errors nack
// the message; Pub/Sub redelivers it and eventually dead-letters it per the
// subscription policy. Undecodable payloads are acked and dropped.
func (q *Queue) Receive(ctx context.Context, handle func(context.Context, branding.Message) error) error {
	subscriber := q.client.Subscriber(q.subName(q.cfg.SubscriptionID))
	return subscriber.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var msg branding.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			q.logger.Warn("dropping undecodable queue message", zap.String("message_id", m.ID), zap.Error(err))
			m.Ack()
			return
		}
		if m.DeliveryAttempt != nil {
			msg.Attempt = *m.DeliveryAttempt
		}
		if err := handle(ctx, msg); err != nil {
			q.logger.Warn("job handler failed, nacking",
				zap.String("job_id", msg.JobID), zap.Int("attempt", msg.Attempt), zap.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
}

// Stats reports depth best-effort. Pub/Sub does not expose backlog counts
// through the client API, so both counts are unavailable.
func (q *Queue) Stats(_ context.Context) (branding.QueueStats, error) {
	return branding.QueueStats{Provider: "pubsub", Active: -1, DeadLetters: -1}, nil
}

// PeekDeadLetters pulls up to limit messages from the dead-letter
// subscription within the peek window and nacks them so they stay parked.
func (q *Queue) PeekDeadLetters(ctx context.Context, limit int) ([]branding.DeadLetter, error) {
	var (
		mu      sync.Mutex
		letters []branding.DeadLetter
	)
	err := q.drainDeadLetters(ctx, limit, func(m *pubsub.Message, msg branding.Message) bool {
		mu.Lock()
		letters = append(letters, branding.DeadLetter{
			Message:       msg,
			MessageID:     m.ID,
			DeliveryCount: deliveryCount(m),
			EnqueuedAt:    m.PublishTime,
		})
		mu.Unlock()
		m.Nack()
		return true
	})
	return letters, err
}

// RequeueDeadLetters republishes up to limit dead-lettered messages to the
// main topic and acks them off the dead-letter subscription.
func (q *Queue) RequeueDeadLetters(ctx context.Context, limit int) ([]branding.Message, error) {
	var (
		mu       sync.Mutex
		requeued []branding.Message
	)
	err := q.drainDeadLetters(ctx, limit, func(m *pubsub.Message, msg branding.Message) bool {
		msg.Attempt = 0
		if sendErr := q.Send(ctx, msg); sendErr != nil {
			q.logger.Warn("requeue publish failed, leaving message dead-lettered",
				zap.String("job_id", msg.JobID), zap.Error(sendErr))
			m.Nack()
			return false
		}
		mu.Lock()
		requeued = append(requeued, msg)
		mu.Unlock()
		m.Ack()
		return true
	})
	return requeued, err
}

// drainDeadLetters receives from the dead-letter subscription until limit
// messages have been visited or the peek window closes.
func (q *Queue) drainDeadLetters(ctx context.Context, limit int, visit func(*pubsub.Message, branding.Message) bool) error {
	if q.cfg.DeadLetterSubID == "" {
		return branding.NewError(branding.KindInfrastructure, "queue", "dead-letter subscription not configured", nil)
	}
	if limit <= 0 {
		limit = 25
	}
	ctx, cancel := context.WithTimeout(ctx, q.cfg.DeadLetterPeekWait)
	defer cancel()

	var (
		mu      sync.Mutex
		visited int
	)
	subscriber := q.client.Subscriber(q.subName(q.cfg.DeadLetterSubID))
	err := subscriber.Receive(ctx, func(_ context.Context, m *pubsub.Message) {
		mu.Lock()
		if visited >= limit {
			mu.Unlock()
			m.Nack()
			return
		}
		visited++
		done := visited >= limit
		mu.Unlock()

		var msg branding.Message
		if jsonErr := json.Unmarshal(m.Data, &msg); jsonErr != nil {
			m.Nack()
			return
		}
		if !visit(m, msg) {
			return
		}
		if done {
			cancel()
		}
	})
	if err != nil && ctx.Err() == nil {
		return branding.NewError(branding.KindInfrastructure, "queue", "receive dead letters", err)
	}
	return nil
}

func deliveryCount(m *pubsub.Message) int {
	if m.DeliveryAttempt != nil {
		return *m.DeliveryAttempt
	}
	return 0
}

// Close releases the client connection.
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
