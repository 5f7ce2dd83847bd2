package waiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbox-app/lockbox-migrate/store"
)

// sequenceProbe replays a fixed sequence of states, then repeats the last.
func sequenceProbe(states ...store.ReadinessStatus) (Probe, *int) {
	calls := new(int)
	return func(ctx context.Context) (store.ReadinessState, error) {
		i := *calls
		*calls++
		if i >= len(states) {
			i = len(states) - 1
		}
		return store.ReadinessState{Status: states[i]}, nil
	}, calls
}

func TestWaitConvergesAfterExactlyFourProbes(t *testing.T) {
	probe, calls := sequenceProbe(
		store.StatusNotFound,
		store.StatusTransitioning,
		store.StatusTransitioning,
		store.StatusActive,
	)
	w := Waiter{
		Resource:    "boxes",
		Probe:       probe,
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	}
	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, 4, *calls)
}

func TestWaitTimesOut(t *testing.T) {
	probe, calls := sequenceProbe(store.StatusTransitioning)
	w := Waiter{
		Resource:    "boxes",
		Probe:       probe,
		Interval:    time.Millisecond,
		MaxAttempts: 3,
	}
	err := w.Wait(context.Background())
	var timeout TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, "boxes", timeout.Resource)
	assert.Equal(t, 3, *calls)
}

func TestWaitProbeErrorIsFatal(t *testing.T) {
	boom := errors.New("describe failed")
	w := Waiter{
		Resource: "boxes",
		Probe: func(ctx context.Context) (store.ReadinessState, error) {
			return store.ReadinessState{}, boom
		},
		Interval:    time.Millisecond,
		MaxAttempts: 5,
	}
	assert.Equal(t, boom, w.Wait(context.Background()))
}

func TestWaitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe, _ := sequenceProbe(store.StatusTransitioning)
	w := Waiter{
		Resource:    "boxes",
		Probe:       probe,
		Interval:    time.Hour,
		MaxAttempts: 5,
	}
	go cancel()
	err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitCustomReadyPredicate(t *testing.T) {
	probe, calls := sequenceProbe(store.StatusNotFound)
	w := Waiter{
		Resource:    "boxes",
		Probe:       probe,
		Interval:    time.Millisecond,
		MaxAttempts: 5,
		Ready: func(state store.ReadinessState) bool {
			return state.Status == store.StatusNotFound
		},
	}
	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, 1, *calls)
}
