// Package worker consumes queue messages and hands each job to the
// workflow coordinator.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
)

// Runner executes the pipeline for one message.
type Runner interface {
	Run(ctx context.Context, msg branding.Message) error
}

// Worker is the queue consumption loop.
type Worker struct {
	queue  branding.Queue
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue branding.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, runner: runner, logger: logger}
}

// Run blocks, consuming messages until the context finishes.
func (w *Worker) Run(ctx context.Context) error {
	err := w.queue.Receive(ctx, w.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handle runs one message. A nil return acks the message; an error nacks it
// for redelivery. Permanent failures are acked: the coordinator has already
// written the terminal checkpoint, so redelivery would only burn attempts.
func (w *Worker) handle(ctx context.Context, msg branding.Message) error {
	log := w.logger.With(zap.String("job_id", msg.JobID), zap.Int("attempt", msg.Attempt))
	log.Debug("message received")

	if err := w.runner.Run(ctx, msg); err != nil {
		if branding.IsPermanent(err) {
			log.Warn("job failed permanently; acking message", zap.Error(err))
			return nil
		}
		log.Warn("job failed; message will be redelivered", zap.Error(err))
		return err
	}
	return nil
}
