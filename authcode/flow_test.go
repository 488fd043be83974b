package authcode

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/xmonader/actionq"
)

const (
	testFlowName     = "download"
	testStartPath    = "/download"
	testCallbackPath = "/callback"
)

// testFlow holds the actions of a download flow bound to one location.
type testFlow struct {
	loc        Location
	redirected chan string
	started    chan actionq.ActionType
	// exchange blocks until released when set
	release chan struct{}
}

func newTestFlow(loc Location) *testFlow {
	return &testFlow{
		loc:        loc,
		redirected: make(chan string, 4),
		started:    make(chan actionq.ActionType, 16),
	}
}

func (tf *testFlow) config() Config {
	return Config{
		Name:         testFlowName,
		StartPath:    testStartPath,
		CallbackPath: testCallbackPath,
		CatcherType:  "catch",
		Actions: []actionq.ActionProps{
			StateAction("state"),
			RedirectAction("redirect", func(_ context.Context, _ actionq.Action, c *actionq.Controller) error {
				tf.redirected <- State(c, "state")
				return nil
			}, 10*time.Millisecond),
			CallbackDetectorAction("catch", tf.loc, testCallbackPath, time.Minute),
			CodeParserAction("parse", tf.loc, "state"),
			ExchangeAction("exchange", "parse", func(ctx context.Context, code Code, _ *actionq.Controller) (any, error) {
				if tf.release != nil {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-tf.release:
					}
				}
				return "token-" + code.Code, nil
			}),
		},
	}
}

func (tf *testFlow) log(t actionq.LogType, a *actionq.Action, _ *actionq.Controller) {
	if t == actionq.LogStarted && a != nil {
		select {
		case tf.started <- a.Type:
		default:
		}
	}
}

func (tf *testFlow) waitStarted(t *testing.T, want actionq.ActionType) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-tf.started:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("%s never started", want)
		}
	}
}

func (tf *testFlow) waitRedirect(t *testing.T) string {
	t.Helper()
	select {
	case state := <-tf.redirected:
		return state
	case <-time.After(2 * time.Second):
		t.Fatalf("redirect never happened")
		return ""
	}
}

func newFlow(t *testing.T, tf *testFlow, storage actionq.Storage) (*Flow, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f, err := NewFlow(ctx, tf.config(), tf.loc, storage, WithLogFunc(tf.log))
	if err != nil {
		cancel()
		t.Fatalf("failed to create flow: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		waitFlow(t, f)
	})
	return f, ctx
}

func waitFlow(t *testing.T, f *Flow) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Wait(ctx); err != nil {
		t.Fatalf("flow did not settle: %v", err)
	}
}

func location(t *testing.T, raw string) *MutableLocation {
	t.Helper()
	loc, err := NewMutableLocation(raw)
	if err != nil {
		t.Fatalf("failed to create location: %v", err)
	}
	return loc
}

// leaveForAuthorization starts a flow on the start page and returns a copy of what it
// stored once the user agent is away at the authorization server, along with the
// state it sent.
func leaveForAuthorization(t *testing.T) (*actionq.MemoryStorage, string) {
	t.Helper()
	first := actionq.NewMemoryStorage()
	tf := newTestFlow(location(t, testStartPath))
	f, ctx := newFlow(t, tf, first)

	if phase := f.NextPhase(); phase != PhaseStart {
		t.Fatalf("expected phase start, got %s", phase)
	}
	if phase := f.Advance(ctx); phase != PhaseStart {
		t.Fatalf("expected advance to act on start, got %s", phase)
	}
	state := tf.waitRedirect(t)
	tf.waitStarted(t, "catch")

	if phase := f.NextPhase(); phase != PhaseWaitForAuthCode {
		t.Fatalf("expected phase waitForAuthCode, got %s", phase)
	}
	if status := f.Status(); status != StatusRunning {
		t.Fatalf("expected status running, got %s", status)
	}

	// the process goes away here without disposing the flow
	raw, err := first.GetItem(t.Context(), testFlowName)
	if err != nil {
		t.Fatalf("expected a stored queue while away: %v", err)
	}
	second := actionq.NewMemoryStorage()
	if err := second.SetItem(t.Context(), testFlowName, raw); err != nil {
		t.Fatalf("failed to copy stored queue: %v", err)
	}
	return second, state
}

// TestFlow_ResumesAfterCallback runs a flow across a restart.
//
// Scenario:
// 1. A flow starts on the start page, creates a state and redirects to authorization.
// 2. The user agent comes back on the callback with the code and the state in a new process.
// 3. The new flow restores the queue, resumes at the catcher and finishes with the exchanged token.
// 4. The stored queue is removed once the flow finished.
func TestFlow_ResumesAfterCallback(t *testing.T) {
	storage, state := leaveForAuthorization(t)

	tf := newTestFlow(location(t, testCallbackPath+"?code=abc&state="+url.QueryEscape(state)))
	f, ctx := newFlow(t, tf, storage)
	if !f.Restored() {
		t.Fatalf("expected the flow to continue from the stored queue")
	}
	if got := State(f.Runner().Controller(), "state"); got != state {
		t.Fatalf("expected restored state %s, got %s", state, got)
	}
	if phase := f.NextPhase(); phase != PhaseResume {
		t.Fatalf("expected phase resume, got %s", phase)
	}

	f.Advance(ctx)
	waitFlow(t, f)

	if status := f.Status(); status != StatusComplete {
		t.Fatalf("expected status complete, got %s (error %q)", status, f.Error())
	}
	if phase := f.NextPhase(); phase != PhaseFinished {
		t.Errorf("expected phase finished, got %s", phase)
	}
	if got := f.Result("exchange"); got != "token-abc" {
		t.Errorf("expected token-abc, got %v", got)
	}
	if _, err := storage.GetItem(t.Context(), testFlowName); !errors.Is(err, actionq.ErrItemNotFound) {
		t.Errorf("expected the stored queue to be removed, got %v", err)
	}
}

func TestFlow_StateMismatch(t *testing.T) {
	storage, _ := leaveForAuthorization(t)

	tf := newTestFlow(location(t, testCallbackPath+"?code=abc&state=forged"))
	f, ctx := newFlow(t, tf, storage)
	f.Advance(ctx)
	waitFlow(t, f)

	if status := f.Status(); status != StatusError {
		t.Fatalf("expected status error, got %s", status)
	}
	if f.Error() != ErrStateMismatch.Error() {
		t.Errorf("expected state mismatch, got %q", f.Error())
	}
	if phase := f.NextPhase(); phase != PhaseRestart {
		t.Errorf("expected phase restart, got %s", phase)
	}
	if got := f.Result("exchange"); got != nil {
		t.Errorf("expected no exchange after a failure, got %v", got)
	}
}

func TestFlow_CallbackWithoutStoredQueue(t *testing.T) {
	tf := newTestFlow(location(t, testCallbackPath+"?code=abc"))
	f, _ := newFlow(t, tf, actionq.NewMemoryStorage())
	if f.Restored() {
		t.Errorf("expected a fresh flow")
	}
	if phase := f.NextPhase(); phase != PhaseInvalidLocation {
		t.Errorf("expected phase invalidLocation, got %s", phase)
	}
	if status := f.Status(); status != StatusIdle {
		t.Errorf("expected status idle, got %s", status)
	}
}

// TestFlow_RestartsWhenStoppedMidway verifies that a queue interrupted before the
// redirect has to run again from the start.
func TestFlow_RestartsWhenStoppedMidway(t *testing.T) {
	storage := actionq.NewMemoryStorage()
	tf := newTestFlow(location(t, testStartPath))
	cfg := tf.config()
	seed, err := actionq.NewQueue(cfg.Actions)
	if err != nil {
		t.Fatalf("failed to build queue: %v", err)
	}
	seed[0].Complete = true
	seed[0].Result = "stale-state"
	if !actionq.StoreQueue(t.Context(), storage, testFlowName, seed) {
		t.Fatalf("failed to seed storage")
	}

	f, ctx := newFlow(t, tf, storage)
	if phase := f.NextPhase(); phase != PhaseRestart {
		t.Fatalf("expected phase restart, got %s", phase)
	}
	f.Advance(ctx)
	state := tf.waitRedirect(t)
	if state == "stale-state" || state == "" {
		t.Errorf("expected a fresh state after restart, got %q", state)
	}
	tf.waitStarted(t, "catch")
	if phase := f.NextPhase(); phase != PhaseWaitForAuthCode {
		t.Errorf("expected phase waitForAuthCode, got %s", phase)
	}
}

// TestFlow_WaitForCompletionAtCallback follows a flow in one process.
//
// Scenario:
// 1. The flow starts and the catcher polls while the user agent is away.
// 2. The user agent lands on the callback and the catcher picks it up.
// 3. While the exchange runs the flow waits for completion, then finishes.
func TestFlow_WaitForCompletionAtCallback(t *testing.T) {
	loc := location(t, testStartPath)
	tf := newTestFlow(loc)
	tf.release = make(chan struct{})
	f, ctx := newFlow(t, tf, actionq.NewMemoryStorage())

	f.Start(ctx)
	state := tf.waitRedirect(t)
	tf.waitStarted(t, "catch")
	if phase := f.NextPhase(); phase != PhaseWaitForAuthCode {
		t.Fatalf("expected phase waitForAuthCode, got %s", phase)
	}

	if err := loc.Set(testCallbackPath + "?code=abc&state=" + url.QueryEscape(state)); err != nil {
		t.Fatalf("failed to move location: %v", err)
	}
	tf.waitStarted(t, "exchange")
	if phase := f.NextPhase(); phase != PhaseWaitForCompletion {
		t.Errorf("expected phase waitForCompletion, got %s", phase)
	}
	if status := f.Status(); status != StatusRunning {
		t.Errorf("expected status running, got %s", status)
	}

	close(tf.release)
	waitFlow(t, f)
	if got := f.Result("exchange"); got != "token-abc" {
		t.Errorf("expected token-abc, got %v", got)
	}
	if phase := f.NextPhase(); phase != PhaseFinished {
		t.Errorf("expected phase finished, got %s", phase)
	}
}

func TestNewFlow_Validation(t *testing.T) {
	tf := newTestFlow(location(t, testStartPath))
	cfg := tf.config()
	cfg.CatcherType = "missing"
	if _, err := NewFlow(t.Context(), cfg, tf.loc, actionq.NewMemoryStorage()); !errors.Is(err, ErrCatcherNotInQueue) {
		t.Errorf("expected ErrCatcherNotInQueue, got %v", err)
	}

	cfg = tf.config()
	cfg.Name = ""
	if _, err := NewFlow(t.Context(), cfg, tf.loc, actionq.NewMemoryStorage()); err == nil {
		t.Errorf("expected an error without a name")
	}

	cfg = tf.config()
	cfg.Actions = append(cfg.Actions, StateAction("state"))
	if _, err := NewFlow(t.Context(), cfg, tf.loc, actionq.NewMemoryStorage()); !errors.Is(err, actionq.ErrActionTypesNotUnique) {
		t.Errorf("expected ErrActionTypesNotUnique, got %v", err)
	}
}

func TestFlow_Dispose(t *testing.T) {
	storage := actionq.NewMemoryStorage()
	tf := newTestFlow(location(t, testStartPath))
	f, ctx := newFlow(t, tf, storage)
	f.Start(ctx)
	tf.waitRedirect(t)
	tf.waitStarted(t, "catch")

	f.Dispose()
	if _, err := storage.GetItem(t.Context(), testFlowName); !errors.Is(err, actionq.ErrItemNotFound) {
		t.Errorf("expected dispose to remove the stored queue, got %v", err)
	}
	if phase := f.NextPhase(); phase != PhaseInvalidLocation {
		t.Errorf("expected phase invalidLocation after dispose, got %s", phase)
	}
}
