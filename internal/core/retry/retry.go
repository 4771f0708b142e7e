package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/rotatarr/rotatarr/internal/core/domain"
)

// Probe runs one test attempt and reports its outcome.
type Probe func(ctx context.Context) domain.TestOutcome

// Executor wraps a single test probe with bounded retry-with-backoff for
// transient failures. Success and permanent failures return immediately;
// only transient outcomes (HTTP 429, network timeout) are retried.
type Executor struct {
	Retries   int           // additional attempts after the first
	BaseDelay time.Duration // delay = BaseDelay * 2^attempt
	Log       *slog.Logger
}

// New creates an executor with the given retry budget.
func New(retries int, baseDelay time.Duration) Executor {
	return Executor{Retries: retries, BaseDelay: baseDelay, Log: slog.Default()}
}

// Do invokes the probe, retrying transient failures with exponential
// backoff. Each retry fully re-runs the probe so rate-limit state observed
// by the remote service is respected. After exhausting the retry budget
// the last outcome is returned downgraded to permanent: the caller treats
// exhaustion identically to a single permanent failure.
func (e Executor) Do(ctx context.Context, probe Probe) domain.TestOutcome {
	var last domain.TestOutcome

	for attempt := 0; attempt <= e.Retries; attempt++ {
		last = probe(ctx)
		if last.Success || last.Kind != domain.ErrorTransient {
			return last
		}

		if attempt == e.Retries {
			break
		}

		delay := e.BaseDelay << uint(attempt)
		e.log().Warn("Transient test failure, retrying after backoff",
			"attempt", attempt+1, "delay", delay, "status", last.HTTPStatus)

		select {
		case <-ctx.Done():
			return domain.Permanent(0, ctx.Err().Error())
		case <-time.After(delay):
		}
	}

	last.Kind = domain.ErrorPermanent
	return last
}

func (e Executor) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
