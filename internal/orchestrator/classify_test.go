package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
)

func TestClassify_Categories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		activity string
		err      error
		contains string
	}{
		{
			name:     "object storage misconfigured",
			activity: "write-outputs",
			err:      branding.NewError(branding.KindInfrastructure, "write-outputs", "upload palette.json", errors.New("bucket does not exist")),
			contains: "Object storage is misconfigured",
		},
		{
			name:     "queue misconfigured",
			activity: "enqueue",
			err:      branding.NewError(branding.KindInfrastructure, "enqueue", "publish", errors.New("pubsub topic missing")),
			contains: "queue is misconfigured",
		},
		{
			name:     "job store misconfigured",
			activity: "checkpoint",
			err:      branding.NewError(branding.KindInfrastructure, "checkpoint", "update", errors.New("postgres connection failed")),
			contains: "job store is misconfigured",
		},
		{
			name:     "validation surfaced verbatim",
			activity: "validate",
			err:      branding.NewError(branding.KindValidation, "validate", "host resolves to a private address", nil),
			contains: "rejected",
		},
		{
			name:     "robots",
			activity: "crawl",
			err:      errors.New("robots.txt disallows all agents"),
			contains: "robots.txt",
		},
		{
			name:     "timeout",
			activity: "crawl",
			err:      context.DeadlineExceeded,
			contains: "too long to respond",
		},
		{
			name:     "dns",
			activity: "crawl",
			err:      errors.New(`lookup hawks.example.com: no such host`),
			contains: "could not be reached",
		},
		{
			name:     "generic",
			activity: "select-logo",
			err:      errors.New("something odd"),
			contains: "failed during select-logo",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.activity, tc.err)
			require.Contains(t, got, tc.contains)
		})
	}
}

func TestClassify_NilError(t *testing.T) {
	t.Parallel()
	require.Empty(t, Classify("crawl", nil))
}
