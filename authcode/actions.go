package authcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xmonader/actionq"
)

const (
	// DefaultRedirectDelay is how long a redirect action keeps the queue waiting after
	// triggering the redirect.
	DefaultRedirectDelay = 60 * time.Millisecond
	// DefaultCallbackTimeout is how long a callback detector waits for the callback.
	DefaultCallbackTimeout = 5 * time.Second
	// DefaultPollInterval is how often a callback detector checks the location.
	DefaultPollInterval = 20 * time.Millisecond
)

var (
	// ErrNotCallbackLocation is returned by a callback detector that timed out.
	ErrNotCallbackLocation = errors.New("current location is not the callback location")
	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("authorization code missing from callback")
	// ErrStateMismatch is returned when the callback state differs from the expected one.
	ErrStateMismatch = errors.New("callback state does not match")
)

// Code is the outcome of an authorization-code callback.
type Code struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// RedirectFunc sends the user agent away, typically to the authorization endpoint.
type RedirectFunc func(ctx context.Context, a actionq.Action, c *actionq.Controller) error

// StateAction generates the state nonce sent with the authorization request. Its
// result is persisted so the callback can be checked after a restart.
func StateAction(t actionq.ActionType) actionq.ActionProps {
	return actionq.ActionProps{
		Type: t,
		Executor: func(context.Context, actionq.Action, *actionq.Controller) (any, error) {
			return uuid.NewString(), nil
		},
	}
}

// State returns the nonce produced by the state action, if it completed.
func State(c *actionq.Controller, stateType actionq.ActionType) string {
	s, _ := c.Result(stateType).(string)
	return s
}

// RedirectAction triggers redirect and then keeps the queue waiting for delay. The
// action reads as complete as soon as it starts.
func RedirectAction(t actionq.ActionType, redirect RedirectFunc, delay time.Duration) actionq.ActionProps {
	if delay <= 0 {
		delay = DefaultRedirectDelay
	}
	return actionq.ActionProps{
		Type:    t,
		Options: actionq.ActionOptions{SynchronousCompletion: true},
		Executor: func(ctx context.Context, a actionq.Action, c *actionq.Controller) (any, error) {
			if err := redirect(ctx, a, c); err != nil {
				return nil, fmt.Errorf("redirect failed: %w", err)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				return nil, nil
			}
		},
	}
}

// CallbackDetectorAction resolves once loc is on callbackPath and fails after timeout.
// It stays eligible as the next action while it is active, so a flow can resume at it.
func CallbackDetectorAction(t actionq.ActionType, loc Location, callbackPath string, timeout time.Duration) actionq.ActionProps {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	return actionq.ActionProps{
		Type:    t,
		Options: actionq.ActionOptions{IdleWhenActive: true},
		Executor: func(ctx context.Context, _ actionq.Action, _ *actionq.Controller) (any, error) {
			if loc.Current().Path == callbackPath {
				return true, nil
			}
			deadline := time.NewTimer(timeout)
			defer deadline.Stop()
			ticker := time.NewTicker(DefaultPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-deadline.C:
					return nil, ErrNotCallbackLocation
				case <-ticker.C:
					if loc.Current().Path == callbackPath {
						return true, nil
					}
				}
			}
		},
	}
}

// CodeParserAction reads the authorization code from the callback query. When
// stateType is set, the callback state has to match the result of that action. The
// code is kept out of persisted snapshots.
func CodeParserAction(t actionq.ActionType, loc Location, stateType actionq.ActionType) actionq.ActionProps {
	return actionq.ActionProps{
		Type:    t,
		Options: actionq.ActionOptions{NoStorage: true},
		Executor: func(_ context.Context, _ actionq.Action, c *actionq.Controller) (any, error) {
			var expected string
			if stateType != "" {
				if expected = State(c, stateType); expected == "" {
					return nil, fmt.Errorf("no state from '%s'", stateType)
				}
			}
			return ParseCallback(loc, expected)
		},
	}
}

// ParseCallback extracts the authorization code from the current location.
func ParseCallback(loc Location, expectedState string) (Code, error) {
	q := loc.Current().Query()
	if e := q.Get("error"); e != "" {
		if desc := q.Get("error_description"); desc != "" {
			return Code{}, fmt.Errorf("authorization failed: %s: %s", e, desc)
		}
		return Code{}, fmt.Errorf("authorization failed: %s", e)
	}
	code := Code{Code: q.Get("code"), State: q.Get("state")}
	if code.Code == "" {
		return Code{}, ErrMissingCode
	}
	if expectedState != "" && code.State != expectedState {
		return Code{}, ErrStateMismatch
	}
	return code, nil
}

// ExchangeFunc consumes the parsed authorization code.
type ExchangeFunc func(ctx context.Context, code Code, c *actionq.Controller) (any, error)

// ExchangeAction runs fn with the result of the parser action.
func ExchangeAction(t actionq.ActionType, parserType actionq.ActionType, fn ExchangeFunc) actionq.ActionProps {
	return actionq.ActionProps{
		Type: t,
		Executor: func(ctx context.Context, _ actionq.Action, c *actionq.Controller) (any, error) {
			code, ok := c.Result(parserType).(Code)
			if !ok {
				return nil, fmt.Errorf("no authorization code from '%s'", parserType)
			}
			return fn(ctx, code, c)
		},
	}
}
