package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/crucible-eval/crucible/internal/server"
)

const backoffCap = 10

// RunList runs one full pass per listed job id. An empty list means a
// single implicit any-job pass. "None available" is logged and the next
// id is tried; any other failure stops the list.
func (e *Evaluator) RunList(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		jobIDs = []string{""}
	}
	for _, id := range jobIDs {
		err := e.EvaluateOne(ctx, id)
		var none *server.NoneAvailableError
		if errors.As(err, &none) {
			logger.Info("no submissions available to evaluate")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RunContinuous polls forever, sleeping between passes. Transient
// failures stretch the sleep by 1.5x per consecutive failure up to 10x
// the base interval; a successful pass resets it; "none available"
// holds it where it is. Only ctx cancellation ends the loop.
func (e *Evaluator) RunContinuous(ctx context.Context) error {
	sched := newSchedule(e.cfg.PollInterval)
	delay := e.cfg.PollInterval
	for {
		err := e.EvaluateOne(ctx, "")
		var none *server.NoneAvailableError
		switch {
		case err == nil:
			sched.Reset()
			delay = e.cfg.PollInterval
		case errors.As(err, &none):
			// Expected and frequent; not a failure.
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			var conn *server.ConnectionError
			if errors.As(err, &conn) {
				logger.WithError(err).Error("could not reach the server")
			} else {
				logger.WithError(err).Error("uncaught failure in job pass")
			}
			delay = sched.NextBackOff()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// newSchedule builds the continuous-mode backoff: deterministic 1.5x
// growth from the base interval, capped at backoffCap times it, never
// giving up on its own.
func newSchedule(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 1.5
	b.MaxInterval = backoffCap * base
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
