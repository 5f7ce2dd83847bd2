// Package waiter polls an external resource until it reaches a terminal
// state or a bounded retry budget runs out. It is reused for DynamoDB tables
// and CloudFormation stacks; anything with a describe-like probe fits.
package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/Clever/kayvee-go/v7/logger"

	"github.com/lockbox-app/lockbox-migrate/store"
)

var log = logger.New("lockbox-migrate")

// TimeoutError is returned when the attempt budget is exhausted before the
// resource became ready. The run cannot safely continue past it.
type TimeoutError struct {
	Resource string
	Attempts int
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s not ready after %d attempts", e.Resource, e.Attempts)
}

// Probe reports the current readiness of the resource. A probe error is
// fatal and ends the wait immediately.
type Probe func(ctx context.Context) (store.ReadinessState, error)

// Waiter polls Probe every Interval up to MaxAttempts times. NotFound and
// Transitioning results keep the wait going; only Ready (per the predicate)
// or budget exhaustion terminate it.
type Waiter struct {
	// Resource names what is being waited on, for logs and errors.
	Resource    string
	Probe       Probe
	Interval    time.Duration
	MaxAttempts int
	// Ready decides whether a probed state is terminal. Defaults to
	// "status is active".
	Ready func(store.ReadinessState) bool
}

func defaultReady(state store.ReadinessState) bool {
	return state.Status == store.StatusActive
}

// Wait blocks until the resource is ready, the attempt budget is exhausted
// (TimeoutError), the probe fails, or ctx is cancelled.
func (w Waiter) Wait(ctx context.Context) error {
	ready := w.Ready
	if ready == nil {
		ready = defaultReady
	}
	for attempt := 1; ; attempt++ {
		state, err := w.Probe(ctx)
		if err != nil {
			return err
		}
		if ready(state) {
			log.InfoD("wait-ready", logger.M{
				"resource": w.Resource,
				"attempts": attempt,
			})
			return nil
		}
		log.InfoD("wait-tick", logger.M{
			"resource": w.Resource,
			"attempt":  attempt,
			"max":      w.MaxAttempts,
			"status":   string(state.Status),
			"detail":   state.Detail,
		})
		if attempt >= w.MaxAttempts {
			return TimeoutError{Resource: w.Resource, Attempts: attempt}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Interval):
		}
	}
}
