// Package actionq provides a persisted, resumable, sequential action queue.
//
// A queue is an ordered list of actions. A Runner executes them one at a time,
// advancing only after the previous action settles, and checkpoints the queue
// into a key-value Storage so a flow interrupted by a redirect or a restart
// can be resumed from where it stopped.
package actionq

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"
)

var (
	// ErrActionMissingType is returned when an action in a queue has an empty type.
	ErrActionMissingType = errors.New("Action must have a type")
	// ErrActionTypesNotUnique is returned when two actions in a queue share a type.
	ErrActionTypesNotUnique = errors.New("Action types must be unique")
	// ErrActionNotFound is returned when an operation names a type that is not in the queue.
	ErrActionNotFound = errors.New("action not found")
	// ErrActionComplete is returned when activating an action that is already complete.
	ErrActionComplete = errors.New("action is already complete")
	// ErrActionFailed is returned when activating an action that has already failed.
	ErrActionFailed = errors.New("action has already failed")
	// ErrActionActive is returned when activating an action that is already active.
	ErrActionActive = errors.New("action is already active")
	// ErrAnotherActionActive is returned when activating an action while a different one is active.
	ErrAnotherActionActive = errors.New("another action is active")
)

// ActionType identifies an action. It is unique within one queue.
type ActionType string

// Executor runs the work of an action. It receives a copy of the action and the
// controller of the queue it belongs to. A nil error resolves the action with the
// returned result, a non-nil error fails it.
type Executor func(ctx context.Context, action Action, c *Controller) (any, error)

// ActionOptions are behavioral flags of an action.
type ActionOptions struct {
	// IdleWhenActive lets an active action still be picked as the next one.
	// Used by actions that wait for something outside the queue, like a redirect callback.
	IdleWhenActive bool
	// NoStorage keeps the result out of persisted snapshots.
	NoStorage bool
	// SynchronousCompletion marks the action complete as soon as it starts.
	// The queue still waits for the executor to return before advancing.
	SynchronousCompletion bool
	// Data is free-form input for the executor.
	Data map[string]any
}

// ActionProps describes an action before it is part of a queue.
type ActionProps struct {
	Type     ActionType
	Executor Executor
	Options  ActionOptions
}

// Action is an action with its queue state.
type Action struct {
	ActionProps
	Complete     bool
	Active       bool
	UpdatedAt    time.Time
	Result       any
	ErrorMessage string
}

// Clone returns a copy of the action that shares no mutable state with it.
func (a Action) Clone() Action {
	c := a
	if a.Options.Data != nil {
		c.Options.Data = maps.Clone(a.Options.Data)
	}
	return c
}

// Failed reports whether the action completed with an error.
func (a Action) Failed() bool {
	return a.Complete && a.ErrorMessage != ""
}

// ActionUpdate holds the fields to change with Controller.UpdateActionAndQueue.
// Nil fields are left untouched.
type ActionUpdate struct {
	Complete     *bool
	Active       *bool
	Result       *any
	ErrorMessage *string
}

func (u ActionUpdate) apply(a Action) Action {
	if u.Complete != nil {
		a.Complete = *u.Complete
	}
	if u.Active != nil {
		a.Active = *u.Active
	}
	if u.Result != nil {
		a.Result = *u.Result
	}
	if u.ErrorMessage != nil {
		a.ErrorMessage = *u.ErrorMessage
	}
	return a
}

func newAction(props ActionProps, now time.Time) Action {
	a := Action{ActionProps: props, UpdatedAt: now}
	if props.Options.Data != nil {
		a.Options.Data = maps.Clone(props.Options.Data)
	}
	return a
}

// pendingShape returns the action as it was before it ever ran.
func pendingShape(a Action, now time.Time) Action {
	a.Complete = false
	a.Active = false
	a.Result = nil
	a.ErrorMessage = ""
	a.UpdatedAt = now
	return a
}

// ValidateQueue checks that every type is set and unique. The first offending
// entry in list order decides the returned error.
func ValidateQueue(types []ActionType) error {
	seen := make(map[ActionType]struct{}, len(types))
	for i, t := range types {
		if t == "" {
			return fmt.Errorf("action at index %d: %w", i, ErrActionMissingType)
		}
		if _, ok := seen[t]; ok {
			return fmt.Errorf("action '%s': %w", t, ErrActionTypesNotUnique)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// NewQueue builds a queue of pending actions from plain descriptors.
func NewQueue(props []ActionProps) ([]Action, error) {
	return newQueue(props, time.Now())
}

func newQueue(props []ActionProps, now time.Time) ([]Action, error) {
	types := make([]ActionType, len(props))
	for i, p := range props {
		types[i] = p.Type
	}
	if err := ValidateQueue(types); err != nil {
		return nil, err
	}
	queue := make([]Action, len(props))
	for i, p := range props {
		queue[i] = newAction(p, now)
	}
	return queue, nil
}

// QueueFrom validates already hydrated actions and returns copies of them.
func QueueFrom(list []Action) ([]Action, error) {
	types := make([]ActionType, len(list))
	for i, a := range list {
		types[i] = a.Type
	}
	if err := ValidateQueue(types); err != nil {
		return nil, err
	}
	return cloneQueue(list), nil
}

func cloneQueue(queue []Action) []Action {
	out := make([]Action, len(queue))
	for i, a := range queue {
		out[i] = a.Clone()
	}
	return out
}
