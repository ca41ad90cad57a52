package resolver

import (
	"context"
	"sync"

	"github.com/tunegate/resolver/internal/model"
)

// flightGroup deduplicates concurrent resolutions of the same key. The
// shared lookup runs on a context detached from any single caller, so one
// caller cancelling does not abort the work other callers are waiting on.
// The lookup itself is cancelled only when the last waiter leaves.
type flightGroup struct {
	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int

	outcome model.Outcome
	err     error
}

func newFlightGroup() *flightGroup {
	return &flightGroup{flights: make(map[string]*flight)}
}

// do runs fn once per key across concurrent callers. Callers whose context
// ends before the shared lookup finishes get their context error; the
// lookup keeps running for the remaining waiters.
func (g *flightGroup) do(ctx context.Context, key string, fn func(ctx context.Context) (model.Outcome, error)) (model.Outcome, error) {
	g.mu.Lock()
	f, ok := g.flights[key]
	if ok {
		f.waiters++
	} else {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{
			done:    make(chan struct{}),
			cancel:  cancel,
			waiters: 1,
		}
		g.flights[key] = f
		go func() {
			f.outcome, f.err = fn(runCtx)
			g.mu.Lock()
			delete(g.flights, key)
			g.mu.Unlock()
			close(f.done)
			cancel()
		}()
	}
	g.mu.Unlock()

	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		g.leave(key, f)
		return model.Outcome{}, ctx.Err()
	}
}

// leave deregisters a cancelled waiter, aborting the shared lookup when it
// was the last one.
func (g *flightGroup) leave(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f.waiters--
	if f.waiters <= 0 {
		select {
		case <-f.done:
		default:
			f.cancel()
		}
	}
}
