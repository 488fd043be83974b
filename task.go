package actionq

import (
	"context"
	"sync"
)

// Task is the handle of one executor invocation.
type Task struct {
	actionType ActionType
	done       chan struct{}
	once       sync.Once
	result     any
	err        error
}

func newTask(t ActionType) *Task {
	return &Task{actionType: t, done: make(chan struct{})}
}

func (t *Task) settle(result any, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}

// ActionType returns the type of the action the task executes.
func (t *Task) ActionType() ActionType {
	return t.actionType
}

// Done is closed once the executor has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Settled reports whether the executor has returned.
func (t *Task) Settled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the executor returns and yields its outcome.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.result, t.err
	}
}
