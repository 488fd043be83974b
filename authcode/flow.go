// Package authcode drives authorization-code flows on top of an action queue.
//
// A Flow persists its queue after every step, so the same flow can be picked up
// again after the user agent comes back from the authorization server, even in a
// new process. NextPhase tells the caller what to do for the current location.
package authcode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xmonader/actionq"
)

// ErrCatcherNotInQueue is returned when the configured catcher type is not one of the actions.
var ErrCatcherNotInQueue = errors.New("redirect catcher is not in the queue")

// FlowStatus summarizes a flow for presentation.
type FlowStatus string

const (
	StatusIdle     FlowStatus = "idle"
	StatusRunning  FlowStatus = "running"
	StatusError    FlowStatus = "error"
	StatusComplete FlowStatus = "complete"
)

// Phase is what the caller should do next with a flow.
type Phase string

const (
	// PhaseStart means nothing has run yet and the flow can be started.
	PhaseStart Phase = "start"
	// PhaseResume means the user agent is back on the callback and the catcher can run.
	PhaseResume Phase = "resume"
	// PhaseRestart means the flow stopped midway or failed and has to run again from the start.
	PhaseRestart Phase = "restart"
	// PhaseWaitForAuthCode means the user agent is away at the authorization server.
	PhaseWaitForAuthCode Phase = "waitForAuthCode"
	// PhaseWaitForCompletion means an action is running.
	PhaseWaitForCompletion Phase = "waitForCompletion"
	// PhaseFinished means every action is complete.
	PhaseFinished Phase = "finished"
	// PhaseInvalidLocation means the flow cannot do anything from the current location.
	PhaseInvalidLocation Phase = "invalidLocation"
)

// Config describes an authorization-code flow.
type Config struct {
	// Name identifies the flow and is the key its queue is stored under.
	Name         string
	StartPath    string
	CallbackPath string
	// CatcherType is the action that detects the return from the authorization server.
	CatcherType actionq.ActionType
	Actions     []actionq.ActionProps
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithLogFunc sets a callback receiving every runner event of the flow.
func WithLogFunc(fn actionq.LogFunc) FlowOption {
	return func(f *Flow) {
		f.logFn = fn
	}
}

// WithRunnerOptions passes options to the underlying runner.
func WithRunnerOptions(opts ...actionq.RunnerOption) FlowOption {
	return func(f *Flow) {
		f.runnerOpts = append(f.runnerOpts, opts...)
	}
}

// Flow is one authorization-code flow bound to a location and a storage.
type Flow struct {
	cfg        Config
	loc        Location
	runner     *actionq.Runner
	logFn      actionq.LogFunc
	runnerOpts []actionq.RunnerOption
	restored   bool

	mu         sync.Mutex
	lastLog    actionq.LogType
	lastAction *actionq.Action
}

// NewFlow creates a flow, continuing from the queue stored under cfg.Name if there is one.
func NewFlow(ctx context.Context, cfg Config, loc Location, storage actionq.Storage, opts ...FlowOption) (*Flow, error) {
	if cfg.Name == "" {
		return nil, errors.New("flow name is required")
	}
	found := false
	for _, a := range cfg.Actions {
		if a.Type == cfg.CatcherType {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("flow %s: %w", cfg.Name, ErrCatcherNotInQueue)
	}

	f := &Flow{cfg: cfg, loc: loc}
	for _, opt := range opts {
		opt(f)
	}

	stored := actionq.GetStoredQueue(ctx, storage, cfg.Name)
	queue, err := actionq.RestoreQueue(cfg.Actions, stored)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", cfg.Name, err)
	}
	f.restored = stored != nil

	runnerOpts := append([]actionq.RunnerOption{}, f.runnerOpts...)
	runnerOpts = append(runnerOpts,
		actionq.WithStorage(storage, cfg.Name),
		actionq.WithLogFunc(f.onLog),
	)
	runner, err := actionq.NewRunnerFromQueue(queue, runnerOpts...)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", cfg.Name, err)
	}
	f.runner = runner
	return f, nil
}

func (f *Flow) onLog(logType actionq.LogType, a *actionq.Action, c *actionq.Controller) {
	f.mu.Lock()
	f.lastLog = logType
	f.lastAction = a
	f.mu.Unlock()
	if f.logFn != nil {
		f.logFn(logType, a, c)
	}
}

// Runner returns the underlying runner.
func (f *Flow) Runner() *actionq.Runner {
	return f.runner
}

// Restored reports whether the flow continued from a stored queue.
func (f *Flow) Restored() bool {
	return f.restored
}

// LastLog returns the most recent runner event and the action it concerned.
func (f *Flow) LastLog() (actionq.LogType, *actionq.Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLog, f.lastAction
}

// Status summarizes the flow as idle, running, error or complete.
func (f *Flow) Status() FlowStatus {
	c := f.runner.Controller()
	if _, failed := c.Failed(); failed {
		return StatusError
	}
	if c.Len() > 0 && c.IsFinished() {
		return StatusComplete
	}
	if f.runner.Busy() {
		return StatusRunning
	}
	logType, _ := f.LastLog()
	switch logType {
	case actionq.LogStarted, actionq.LogCompleted:
		return StatusRunning
	case actionq.LogError:
		return StatusError
	}
	return StatusIdle
}

// NextPhase decides what should happen next given the queue and the current location.
func (f *Flow) NextPhase() Phase {
	c := f.runner.Controller()
	if c.Len() == 0 {
		return PhaseInvalidLocation
	}
	if _, failed := c.Failed(); failed {
		return PhaseRestart
	}
	if c.IsFinished() {
		return PhaseFinished
	}

	atCallback := f.loc.Current().Path == f.cfg.CallbackPath
	if next, ok := c.Next(); ok && next.Type == f.cfg.CatcherType {
		switch f.runner.Status(next.Type) {
		case actionq.StatusNext:
			if atCallback {
				return PhaseResume
			}
			if len(c.Completed()) > 0 {
				return PhaseWaitForAuthCode
			}
		case actionq.StatusPending:
			if atCallback {
				return PhaseWaitForCompletion
			}
			return PhaseWaitForAuthCode
		}
	}
	if f.runner.Busy() {
		return PhaseWaitForCompletion
	}
	if len(c.Completed()) == 0 {
		if f.loc.Current().Path == f.cfg.StartPath {
			return PhaseStart
		}
		return PhaseInvalidLocation
	}
	return PhaseRestart
}

// Start runs the flow from its first action.
func (f *Flow) Start(ctx context.Context) {
	f.runner.Start(ctx)
}

// Resume continues the flow at its next action.
func (f *Flow) Resume(ctx context.Context) {
	next, ok := f.runner.Controller().Next()
	if !ok {
		f.runner.Resume(ctx, f.cfg.CatcherType)
		return
	}
	f.runner.Resume(ctx, next.Type)
}

// Restart resets the queue and runs it from the first action.
func (f *Flow) Restart(ctx context.Context) {
	f.runner.Reset()
	f.runner.Start(ctx)
}

// Advance acts on the current phase: it starts, resumes or restarts the flow as needed
// and returns the phase it acted on.
func (f *Flow) Advance(ctx context.Context) Phase {
	phase := f.NextPhase()
	switch phase {
	case PhaseStart:
		f.Start(ctx)
	case PhaseResume:
		f.Resume(ctx)
	case PhaseRestart:
		f.Restart(ctx)
	}
	return phase
}

// Wait blocks until no action of the flow is running.
func (f *Flow) Wait(ctx context.Context) error {
	return f.runner.Wait(ctx)
}

// Results returns the result of every action in queue order.
func (f *Flow) Results() []any {
	return f.runner.Controller().Results()
}

// Result returns the result of the given action if it is complete.
func (f *Flow) Result(t actionq.ActionType) any {
	return f.runner.Controller().Result(t)
}

// Error returns the message of the failed action, if any.
func (f *Flow) Error() string {
	if a, ok := f.runner.Controller().Failed(); ok {
		return a.ErrorMessage
	}
	return ""
}

// Dispose stops the flow and removes its stored queue.
func (f *Flow) Dispose() {
	f.runner.Dispose()
}
