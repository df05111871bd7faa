package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/berginj/glovebrand/internal/branding"
)

// Classify maps a failing activity and its error to the user-facing message
// persisted on the terminal failed checkpoint. Every unrecoverable failure
// funnels through here so operators see an actionable category instead of a
// raw stack of wrapped errors.
func Classify(activity string, err error) string {
	if err == nil {
		return ""
	}
	text := strings.ToLower(err.Error())

	if branding.KindOf(err) == branding.KindInfrastructure {
		switch {
		case containsAny(text, "bucket", "blob", "object storage", "artifact"):
			return "Object storage is misconfigured. Check the artifact bucket settings."
		case containsAny(text, "pubsub", "topic", "subscription", "queue"):
			return "The job queue is misconfigured. Check the queue connection settings."
		case containsAny(text, "job store", "postgres", "database", "pool"):
			return "The job store is misconfigured. Check the database connection settings."
		}
	}

	switch {
	case branding.KindOf(err) == branding.KindValidation:
		return fmt.Sprintf("The team URL was rejected: %v", err)
	case containsAny(text, "robots"):
		return "The team site disallows crawling via robots.txt."
	case errors.Is(err, context.DeadlineExceeded) || containsAny(text, "timeout", "deadline exceeded"):
		return "The team site took too long to respond. Try again later."
	case containsAny(text, "no such host", "dns", "unreachable", "connection refused", "connection reset"):
		return "The team site could not be reached. Check the URL and try again."
	case errors.Is(err, branding.ErrBudgetExceeded):
		return "The crawl exceeded its download budget before finishing."
	default:
		return fmt.Sprintf("The branding pipeline failed during %s.", activity)
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
