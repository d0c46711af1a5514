package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/comfypanel/comfypanel/client"
)

type OutcomeStatus int

const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomeFailed
	OutcomeTimeout
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// Outcome is the terminal state of one job. Refs is only set on success.
type Outcome struct {
	Status OutcomeStatus
	Refs   []client.OutputRef
}

// waitForCompletion polls the backend every pollInterval until the job completes with
// outputs, fails, or maxWait elapses. Poll transport errors are logged and retried on the
// next tick. The only error returned is ctx's.
func (c *Coordinator) waitForCompletion(ctx context.Context, promptID string) (Outcome, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if c.maxWait > 0 {
		timer := time.NewTimer(c.maxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-deadline:
			slog.Warn("gave up waiting for job", "prompt_id", promptID, "max_wait", c.maxWait)
			return Outcome{Status: OutcomeTimeout}, nil
		case <-ticker.C:
		}

		status, err := c.backend.Status(ctx, promptID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			slog.Warn("poll error", "prompt_id", promptID, "error", err)
			continue
		}

		switch {
		case status.Completed():
			return Outcome{Status: OutcomeSuccess, Refs: status.OutputRefs()}, nil
		case status.Failed():
			return Outcome{Status: OutcomeFailed}, nil
		default:
			slog.Debug("job pending", "prompt_id", promptID, "status", status.Status)
		}
	}
}
