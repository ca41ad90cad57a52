package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegate/resolver/internal/model"
)

func TestFlightGroup_SharesOneCall(t *testing.T) {
	g := newFlightGroup()
	var calls atomic.Int32

	fn := func(ctx context.Context) (model.Outcome, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return model.Outcome{Unresolved: &model.Unresolved{Reason: model.ReasonNoConfidentMatch}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := g.do(context.Background(), "k", fn)
			assert.NoError(t, err)
			assert.NotNil(t, out.Unresolved)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestFlightGroup_CancelledWaiterDoesNotAbortSharedLookup(t *testing.T) {
	g := newFlightGroup()
	started := make(chan struct{})
	sawCancel := make(chan bool, 1)

	fn := func(ctx context.Context) (model.Outcome, error) {
		close(started)
		select {
		case <-ctx.Done():
			sawCancel <- true
			return model.Outcome{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			sawCancel <- false
			return model.Outcome{Result: &model.ResolutionResult{}}, nil
		}
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// First waiter cancels early.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := g.do(cancelCtx, "k", fn)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	<-started
	// Second waiter joins before the first one leaves.
	wg.Add(1)
	go func() {
		defer wg.Done()
		out, err := g.do(context.Background(), "k", fn)
		assert.NoError(t, err)
		assert.True(t, out.Resolved())
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.False(t, <-sawCancel, "shared lookup must keep running while a waiter remains")
}

func TestFlightGroup_LastWaiterCancelsLookup(t *testing.T) {
	g := newFlightGroup()
	sawCancel := make(chan bool, 1)

	fn := func(ctx context.Context) (model.Outcome, error) {
		select {
		case <-ctx.Done():
			sawCancel <- true
			return model.Outcome{}, ctx.Err()
		case <-time.After(time.Second):
			sawCancel <- false
			return model.Outcome{}, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, err := g.do(ctx, "k", fn)
		assert.ErrorIs(t, err, context.Canceled)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not return after cancellation")
	}
	require.True(t, <-sawCancel, "lookup must be cancelled once its only waiter leaves")
}
