package actionq

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Runner executes the actions of one queue, one at a time and in order.
// The next action starts only after the previous one has returned without error.
// A failed action halts the queue until it is resumed or reset.
type Runner struct {
	id         string
	controller *Controller
	logFn      LogFunc
	logger     Logger
	storage    Storage
	storageKey string
	clock      Clock

	mu       sync.Mutex
	pending  *Task
	disposed bool
	busy     int
	quiet    chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogFunc sets the callback receiving lifecycle events and scheduling errors.
func WithLogFunc(fn LogFunc) RunnerOption {
	return func(r *Runner) {
		r.logFn = fn
	}
}

// WithLogger sets the structured logger used for diagnostics.
func WithLogger(logger Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStorage makes the runner checkpoint the queue under key after every lifecycle event.
func WithStorage(storage Storage, key string) RunnerOption {
	return func(r *Runner) {
		r.storage = storage
		r.storageKey = key
	}
}

// WithClock sets the clock used to stamp UpdatedAt.
func WithClock(clock Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithID overrides the generated runner ID.
func WithID(id string) RunnerOption {
	return func(r *Runner) {
		r.id = id
	}
}

// NewRunner creates a runner over a queue of pending actions built from props.
func NewRunner(props []ActionProps, opts ...RunnerOption) (*Runner, error) {
	r := newRunner(opts)
	c, err := NewController(props, r.clock)
	if err != nil {
		return nil, err
	}
	r.controller = c
	return r, nil
}

// NewRunnerFromQueue creates a runner over already hydrated actions, such as the
// output of RestoreQueue.
func NewRunnerFromQueue(queue []Action, opts ...RunnerOption) (*Runner, error) {
	r := newRunner(opts)
	c, err := NewControllerFromQueue(queue, r.clock)
	if err != nil {
		return nil, err
	}
	r.controller = c
	return r, nil
}

func newRunner(opts []RunnerOption) *Runner {
	r := &Runner{
		id:     uuid.New().String(),
		logger: NopLogger{},
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.storage != nil && r.storageKey == "" {
		r.storageKey = "actionq:" + r.id
	}
	return r
}

// ID returns the runner ID.
func (r *Runner) ID() string {
	return r.id
}

// Controller returns the controller of the runner's queue.
func (r *Runner) Controller() *Controller {
	return r.controller
}

// StorageKey returns the key the queue is checkpointed under, if storage is configured.
func (r *Runner) StorageKey() string {
	return r.storageKey
}

// IsDisposed reports whether Dispose was called.
func (r *Runner) IsDisposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Pending returns the handle of the last started executor, or nil if none was
// started or the runner is disposed.
func (r *Runner) Pending() *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Busy reports whether an executor is in flight or the next action is about to start.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy > 0
}

// Status returns the scheduling status of the action with the given type.
func (r *Runner) Status(t ActionType) ActionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(t)
}

func (r *Runner) statusLocked(t ActionType) ActionStatus {
	a, ok := r.controller.Action(t)
	if !ok || t == "" {
		return StatusInvalid
	}
	if a.Complete {
		return StatusComplete
	}
	if active, ok := r.controller.Active(); ok {
		if active.Type != t {
			return StatusInQueue
		}
		if r.pending != nil && r.pending.actionType == t && !r.pending.Settled() {
			return StatusPending
		}
		return StatusActive
	}
	if next, ok := r.controller.Next(); ok && next.Type == t {
		return StatusNext
	}
	if !a.Active {
		return StatusNotNext
	}
	// an active action always matches the Active lookup above
	return StatusUnknown
}

// Start executes the queue from its first action.
func (r *Runner) Start(ctx context.Context) {
	var first ActionType
	if q := r.controller.Queue(); len(q) > 0 {
		first = q[0].Type
	}
	r.Resume(ctx, first)
}

// Resume executes the action with the given type if it is the next one, or does
// nothing if its executor is already in flight. Any other status is reported to the
// log func as a scheduling error and leaves the queue untouched.
func (r *Runner) Resume(ctx context.Context, t ActionType) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	a, ok := r.controller.Action(t)
	if !ok {
		r.mu.Unlock()
		r.emit(ErrTypeUnknownActionType, nil)
		return
	}
	status := r.statusLocked(t)
	if errType := executionError(status); errType != "" {
		r.mu.Unlock()
		r.emit(errType, &a)
		return
	}
	if status == StatusPending {
		r.mu.Unlock()
		return
	}
	r.execute(ctx, a)
}

// execute must be called with r.mu held. It releases the lock.
func (r *Runner) execute(ctx context.Context, a Action) {
	task, ok := r.reserve(a)
	r.mu.Unlock()
	if !ok {
		r.emit(ErrTypeActionIsInvalid, &a)
		return
	}
	r.launch(ctx, a, task)
}

// reserve activates the action and makes it the pending one. It must be called
// with r.mu held, so no other action can be started until the lock is released.
func (r *Runner) reserve(a Action) (*Task, bool) {
	if err := r.controller.ActivateAction(a.Type); err != nil {
		r.logger.Error().Err(err).Str("runner_id", r.id).Str("action", string(a.Type)).Msg("failed to activate action")
		return nil, false
	}
	task := newTask(a.Type)
	r.pending = task
	r.busyInc()
	return task, true
}

// launch logs the start of a reserved action and runs its executor. a is the
// action as it was before activation.
func (r *Runner) launch(ctx context.Context, a Action, task *Task) {
	if r.IsDisposed() {
		r.busyDec()
		return
	}
	r.emitAction(LogStarted, a.Type)

	if a.Options.SynchronousCompletion {
		r.mu.Lock()
		completed := !r.disposed && r.controller.CompleteAction(a.Type, nil) == nil
		r.mu.Unlock()
		if completed {
			r.emitAction(LogCompleted, a.Type)
		}
	}

	go r.run(ctx, a.Clone(), task)
}

func (r *Runner) run(ctx context.Context, a Action, task *Task) {
	defer r.busyDec()

	result, err := r.invoke(ctx, a)
	task.settle(result, err)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		r.logger.Debug().Str("runner_id", r.id).Str("action", string(a.Type)).Msg("dropping result of disposed runner")
		return
	}
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = fmt.Sprintf("action '%s' failed", a.Type)
		}
		failErr := r.controller.SetActionFailed(a.Type, msg)
		r.mu.Unlock()
		if failErr != nil {
			r.logger.Error().Err(failErr).Str("runner_id", r.id).Str("action", string(a.Type)).Msg("failed to mark action failed")
			return
		}
		r.emitAction(LogError, a.Type)
		return
	}
	if current, ok := r.controller.Action(a.Type); !ok || !current.Complete {
		if completeErr := r.controller.CompleteAction(a.Type, result); completeErr != nil {
			r.mu.Unlock()
			r.logger.Error().Err(completeErr).Str("runner_id", r.id).Str("action", string(a.Type)).Msg("failed to mark action complete")
			return
		}
	}

	// only the pending task moves the queue on; a synchronously completed action
	// may have been overtaken by its successor
	var (
		next     Action
		nextTask *Task
		hasNext  bool
		reserved bool
	)
	if r.pending == task {
		next, hasNext = r.controller.Next()
		if hasNext {
			nextTask, reserved = r.reserve(next)
		}
	}
	r.mu.Unlock()

	r.emitAction(LogCompleted, a.Type)
	switch {
	case reserved:
		r.launch(ctx, next, nextTask)
	case hasNext:
		r.emit(ErrTypeActionIsInvalid, &next)
	}
}

func (r *Runner) invoke(ctx context.Context, a Action) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in action '%s': %v", a.Type, rec)
		}
	}()
	if a.Executor == nil {
		return nil, fmt.Errorf("action '%s' has no executor", a.Type)
	}
	return a.Executor(ctx, a, r.controller)
}

// Reset returns every action to its pending shape.
func (r *Runner) Reset() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.controller.Reset()
	r.mu.Unlock()
	r.emit(LogReset, nil)
}

// Dispose makes the runner inert. Executors in flight keep running but their
// outcome is dropped. Calling Dispose more than once has no further effect.
func (r *Runner) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.pending = nil
	r.controller.Clean()
	r.mu.Unlock()

	r.logger.Debug().Str("runner_id", r.id).Msg("runner disposed")
	r.persist(nil)
}

// Wait blocks until no executor is in flight and no next action is about to start.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.busy == 0 {
		r.mu.Unlock()
		return nil
	}
	quiet := r.quiet
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-quiet:
		return nil
	}
}

// busyInc must be called with r.mu held.
func (r *Runner) busyInc() {
	if r.busy == 0 {
		r.quiet = make(chan struct{})
	}
	r.busy++
}

func (r *Runner) busyDec() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy--
	if r.busy == 0 {
		close(r.quiet)
	}
}

func (r *Runner) emitAction(t LogType, actionType ActionType) {
	if a, ok := r.controller.Action(actionType); ok {
		r.emit(t, &a)
		return
	}
	r.emit(t, nil)
}

func (r *Runner) emit(t LogType, a *Action) {
	if r.IsDisposed() {
		return
	}
	ev := r.logger.Debug()
	if IsGenericError(t) {
		ev = r.logger.Warn()
	}
	ev = ev.Str("runner_id", r.id).Str("event", string(t))
	if a != nil {
		ev = ev.Str("action", string(a.Type))
		if a.ErrorMessage != "" {
			ev = ev.Str("error", a.ErrorMessage)
		}
	}
	ev.Msg("action queue event")

	if !IsGenericError(t) {
		if r.controller.IsFinished() {
			r.persist(nil)
		} else {
			r.persist(r.controller.Queue())
		}
	}
	if r.logFn != nil {
		r.logFn(t, a, r.controller)
	}
}

// persist writes the queue to storage, or removes it when queue is nil.
func (r *Runner) persist(queue []Action) {
	if r.storage == nil {
		return
	}
	if !StoreQueue(context.Background(), r.storage, r.storageKey, queue) {
		r.logger.Warn().Str("runner_id", r.id).Str("key", r.storageKey).Bool("clear", queue == nil).Msg("failed to store queue")
	}
}
