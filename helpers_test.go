package actionq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects log func calls as "event(action)" strings.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) log(t LogType, a *Action, _ *Controller) {
	name := "-"
	if a != nil {
		name = string(a.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s(%s)", t, name))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func resolve(value any) Executor {
	return func(context.Context, Action, *Controller) (any, error) {
		return value, nil
	}
}

func resolveAfter(value any, d time.Duration) Executor {
	return func(ctx context.Context, _ Action, _ *Controller) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return value, nil
		}
	}
}

func reject(msg string) Executor {
	return func(context.Context, Action, *Controller) (any, error) {
		return nil, fmt.Errorf("%s", msg)
	}
}

// gate is an executor that signals when entered and returns once released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) executor(value any) Executor {
	return func(context.Context, Action, *Controller) (any, error) {
		g.mu.Lock()
		g.calls++
		g.mu.Unlock()
		g.entered <- struct{}{}
		<-g.release
		return value, nil
	}
}

func (g *gate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("executor was never entered")
	}
}

func waitRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("runner did not settle: %v", err)
	}
}
