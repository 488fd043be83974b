package actionq

// ActionStatus is the scheduling status of an action, computed on demand.
type ActionStatus string

const (
	StatusInvalid  ActionStatus = "invalid"
	StatusComplete ActionStatus = "complete"
	// StatusPending means the action is active and its executor has not returned.
	StatusPending ActionStatus = "pending"
	// StatusActive means the action is active without an executor in flight.
	StatusActive  ActionStatus = "active"
	StatusInQueue ActionStatus = "in-queue"
	StatusNext    ActionStatus = "next"
	StatusNotNext ActionStatus = "not-next"
	StatusUnknown ActionStatus = "unknown"
)

// String returns the raw string value of the status.
func (s ActionStatus) String() string { return string(s) }

// executionError maps a status to the scheduling error that prevents executing
// the action. An empty result means the action may run.
func executionError(s ActionStatus) LogType {
	switch s {
	case StatusPending, StatusNext:
		return ""
	case StatusActive:
		return ErrTypeActionIsActive
	case StatusComplete:
		return ErrTypeActionIsComplete
	case StatusInQueue:
		return ErrTypeAnotherActionIsActive
	case StatusNotNext:
		return ErrTypeActionIsNotNext
	default:
		return ErrTypeActionIsInvalid
	}
}
