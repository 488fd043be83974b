package actionq

// LogType is the kind of event passed to a LogFunc. It is either an action
// lifecycle event or a generic scheduling error.
type LogType string

// Action lifecycle events.
const (
	LogStarted   LogType = "started"
	LogCompleted LogType = "completed"
	LogError     LogType = "error"
	LogReset     LogType = "reset"
)

// Generic scheduling errors. They never change the queue.
const (
	ErrTypeActionIsActive        LogType = "CANNOT_EXECUTE_ACTION_IS_ACTIVE"
	ErrTypeActionIsNotNext       LogType = "CANNOT_EXECUTE_ACTION_IS_NOT_NEXT"
	ErrTypeActionIsInvalid       LogType = "CANNOT_EXECUTE_ACTION_IS_INVALID"
	ErrTypeAnotherActionIsActive LogType = "CANNOT_EXECUTE_ANOTHER_ACTION_IS_ACTIVE"
	ErrTypeActionIsComplete      LogType = "CANNOT_EXECUTE_ACTION_IS_COMPLETE"
	ErrTypeUnknownActionType     LogType = "UNKNOWN_ACTION_TYPE"
)

// GenericErrorTypes lists every generic scheduling error in a stable order.
var GenericErrorTypes = []LogType{
	ErrTypeActionIsActive,
	ErrTypeActionIsNotNext,
	ErrTypeActionIsInvalid,
	ErrTypeAnotherActionIsActive,
	ErrTypeActionIsComplete,
	ErrTypeUnknownActionType,
}

// IsGenericError reports whether t is a scheduling error rather than a lifecycle event.
func IsGenericError(t LogType) bool {
	for _, g := range GenericErrorTypes {
		if g == t {
			return true
		}
	}
	return false
}

// String returns the raw string value of the log type.
func (t LogType) String() string { return string(t) }

// LogFunc receives every lifecycle event and scheduling error of a runner.
// action is a copy of the action involved, or nil when there is none.
type LogFunc func(logType LogType, action *Action, c *Controller)
