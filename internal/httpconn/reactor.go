package httpconn

import (
	"context"
	"errors"
	"sync"
)

// Reactor is the executor a single check invocation runs its network steps
// on. It is created when the check starts and closed when it ends; nothing
// is shared between reactors.
type Reactor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReactor returns a reactor whose lifetime is bounded by parent.
func NewReactor(parent context.Context) *Reactor {
	ctx, cancel := context.WithCancel(parent)
	return &Reactor{ctx: ctx, cancel: cancel}
}

// Context is cancelled when the reactor is closed.
func (r *Reactor) Context() context.Context {
	return r.ctx
}

// Go runs fn on the reactor.
func (r *Reactor) Go(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
}

// Close cancels the reactor context and waits for every step started with Go
// to return.
func (r *Reactor) Close() {
	r.cancel()
	r.wg.Wait()
}

// race runs step on the reactor and returns whichever comes first: its
// result or ctx being done. A losing step is abandoned by calling abandon,
// which must unblock it; if it still produces a value afterwards, late
// receives that value so it can be cleaned up.
func race[T any](ctx context.Context, r *Reactor, step func() (T, error), abandon func(), late func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	r.Go(func(context.Context) {
		v, err := step()
		done <- result{v: v, err: err}
	})

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		if abandon != nil {
			abandon()
		}
		if late != nil {
			r.Go(func(context.Context) {
				if res := <-done; res.err == nil {
					late(res.v)
				}
			})
		}
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
