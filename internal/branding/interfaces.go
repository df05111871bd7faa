package branding

import (
	"context"
	"time"
)

// JobStore persists job records and serves the stale/cache queries.
// UpdateStage must be safe to re-invoke with the same arguments: the
// coordinator may replay a checkpoint after a crash.
type JobStore interface {
	Upsert(ctx context.Context, job Job) error
	UpdateStage(ctx context.Context, jobID string, stage Stage, update StageUpdate) error
	Get(ctx context.Context, jobID string) (Job, error)
	ListRecent(ctx context.Context, limit int) ([]Job, error)
	ListStale(ctx context.Context, stages []Stage, olderThan time.Time, limit int) ([]Job, error)
	LatestCompletedByTeamURL(ctx context.Context, teamURL string) (Job, error)
}

// BlobStore writes artifacts and returns their location.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (ArtifactLocation, error)
}

// Queue provides at-least-once delivery of job messages with a dead-letter
// subqueue after delivery exhaustion.
type Queue interface {
	Send(ctx context.Context, msg Message) error
	// Receive blocks, invoking handle for each delivered message until the
	// context finishes. A non-nil error from handle nacks the message for
	// redelivery.
	Receive(ctx context.Context, handle func(context.Context, Message) error) error
	Stats(ctx context.Context) (QueueStats, error)
	PeekDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	RequeueDeadLetters(ctx context.Context, limit int) ([]Message, error)
}

// Clock returns the current time (fixed in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
