package actionq

import (
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time operations for easier testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements the Clock interface using the system clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Controller owns the live queue. Accessors return copies and mutators replace
// the whole queue, so nothing handed out can observe a half-applied change.
type Controller struct {
	mu    sync.RWMutex
	queue []Action
	clock Clock
}

// NewController creates a controller over a queue of pending actions built from props.
func NewController(props []ActionProps, clock Clock) (*Controller, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	queue, err := newQueue(props, clock.Now())
	if err != nil {
		return nil, err
	}
	return &Controller{queue: queue, clock: clock}, nil
}

// NewControllerFromQueue creates a controller over already hydrated actions.
func NewControllerFromQueue(list []Action, clock Clock) (*Controller, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	queue, err := QueueFrom(list)
	if err != nil {
		return nil, err
	}
	return &Controller{queue: queue, clock: clock}, nil
}

// Queue returns a copy of the queue.
func (c *Controller) Queue() []Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneQueue(c.queue)
}

// Len returns the number of actions in the queue.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.queue)
}

func (c *Controller) find(match func(Action) bool) (Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.queue {
		if match(a) {
			return a.Clone(), true
		}
	}
	return Action{}, false
}

func isIdle(a Action) bool {
	return !a.Complete && (!a.Active || a.Options.IdleWhenActive)
}

// Action returns the action with the given type.
func (c *Controller) Action(t ActionType) (Action, bool) {
	return c.find(func(a Action) bool { return a.Type == t })
}

// Next returns the first action that can be executed next.
func (c *Controller) Next() (Action, bool) {
	return c.find(isIdle)
}

// Active returns the first active action.
func (c *Controller) Active() (Action, bool) {
	return c.find(func(a Action) bool { return a.Active })
}

// Failed returns the first action that completed with an error.
func (c *Controller) Failed() (Action, bool) {
	return c.find(Action.Failed)
}

// Completed returns all complete actions in queue order.
func (c *Controller) Completed() []Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Action
	for _, a := range c.queue {
		if a.Complete {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Result returns the result of the action if it is complete.
func (c *Controller) Result(t ActionType) any {
	a, ok := c.Action(t)
	if !ok || !a.Complete {
		return nil
	}
	return a.Result
}

// Results returns the result of every action in queue order. Incomplete actions yield nil.
func (c *Controller) Results() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]any, len(c.queue))
	for i, a := range c.queue {
		if a.Complete {
			out[i] = a.Result
		}
	}
	return out
}

// IsFinished reports whether an action has failed or all actions are complete.
func (c *Controller) IsFinished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.queue {
		if a.Failed() {
			return true
		}
	}
	for _, a := range c.queue {
		if !a.Complete {
			return false
		}
	}
	return true
}

// ActivateAction marks the action active. At most one action is active at a time,
// except next to actions that stay idle while active.
func (c *Controller) ActivateAction(t ActionType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(t)
	if i < 0 {
		return fmt.Errorf("activate '%s': %w", t, ErrActionNotFound)
	}
	a := c.queue[i]
	switch {
	case a.Failed():
		return fmt.Errorf("activate '%s': %w", t, ErrActionFailed)
	case a.Complete:
		return fmt.Errorf("activate '%s': %w", t, ErrActionComplete)
	case a.Active && !a.Options.IdleWhenActive:
		return fmt.Errorf("activate '%s': %w", t, ErrActionActive)
	}
	for j, other := range c.queue {
		if j != i && other.Active && !other.Options.IdleWhenActive {
			return fmt.Errorf("activate '%s': '%s' is active: %w", t, other.Type, ErrAnotherActionActive)
		}
	}
	active := true
	return c.update(t, ActionUpdate{Active: &active})
}

// CompleteAction marks the action complete with the given result.
func (c *Controller) CompleteAction(t ActionType, result any) error {
	complete, active := true, false
	return c.UpdateActionAndQueue(t, ActionUpdate{Complete: &complete, Active: &active, Result: &result})
}

// SetActionFailed marks the action complete with the given error message.
func (c *Controller) SetActionFailed(t ActionType, errorMessage string) error {
	complete, active := true, false
	return c.UpdateActionAndQueue(t, ActionUpdate{Complete: &complete, Active: &active, ErrorMessage: &errorMessage})
}

// UpdateActionAndQueue merges the update into the action, refreshes its UpdatedAt
// and swaps in a new queue.
func (c *Controller) UpdateActionAndQueue(t ActionType, update ActionUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.update(t, update)
}

func (c *Controller) update(t ActionType, update ActionUpdate) error {
	i := c.indexOf(t)
	if i < 0 {
		return fmt.Errorf("update '%s': %w", t, ErrActionNotFound)
	}
	next := cloneQueue(c.queue)
	a := update.apply(next[i])
	a.UpdatedAt = c.clock.Now()
	next[i] = a
	c.queue = next
	return nil
}

func (c *Controller) indexOf(t ActionType) int {
	if t == "" {
		return -1
	}
	for i, a := range c.queue {
		if a.Type == t {
			return i
		}
	}
	return -1
}

// Reset returns every action to its pending shape.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	next := make([]Action, len(c.queue))
	for i, a := range c.queue {
		next[i] = pendingShape(a.Clone(), now)
	}
	c.queue = next
}

// Clean empties the queue. The controller is unusable afterwards.
func (c *Controller) Clean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = []Action{}
}
