package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
	queuemem "github.com/berginj/glovebrand/internal/queue/memory"
)

type stubRunner struct {
	mu    sync.Mutex
	calls []branding.Message
	errs  []error
	done  context.CancelFunc
}

func (r *stubRunner) Run(_ context.Context, msg branding.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, msg)
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	if len(r.errs) == 0 && r.done != nil {
		r.done()
	}
	return err
}

func (r *stubRunner) messages() []branding.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]branding.Message(nil), r.calls...)
}

func runWorker(t *testing.T, queue branding.Queue, runner *stubRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runner.done = cancel

	w := New(queue, runner, nil)
	require.NoError(t, w.Run(ctx))
}

func TestRun_DeliversMessageToRunner(t *testing.T) {
	t.Parallel()

	queue := queuemem.New(8, 5)
	msg := branding.Message{JobID: "j1", TeamURL: "https://hawks.example.com", Mode: branding.ModeProposal}
	require.NoError(t, queue.Send(context.Background(), msg))

	runner := &stubRunner{errs: []error{nil}}
	runWorker(t, queue, runner)

	got := runner.messages()
	require.Len(t, got, 1)
	require.Equal(t, "j1", got[0].JobID)
}

func TestRun_TransientFailureRedelivered(t *testing.T) {
	t.Parallel()

	queue := queuemem.New(8, 5)
	require.NoError(t, queue.Send(context.Background(), branding.Message{JobID: "j1"}))

	runner := &stubRunner{errs: []error{errors.New("connection reset"), nil}}
	runWorker(t, queue, runner)

	got := runner.messages()
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Attempt)
	require.Equal(t, 2, got[1].Attempt)
}

func TestRun_PermanentFailureAcked(t *testing.T) {
	t.Parallel()

	queue := queuemem.New(8, 5)
	require.NoError(t, queue.Send(context.Background(), branding.Message{JobID: "j1"}))

	cause := branding.NewError(branding.KindValidation, "validate", "bad url", nil)
	runner := &stubRunner{errs: []error{cause}}
	runWorker(t, queue, runner)

	require.Len(t, runner.messages(), 1, "permanent failure must not be redelivered")

	stats, err := queue.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Active)
	require.Zero(t, stats.DeadLetters)
}
