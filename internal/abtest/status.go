package abtest

// Status is the lifecycle state of an ABTest.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusCompleted, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusCompleted || to == StatusStopped || to == StatusFailed
	default:
		return false
	}
}

// Transition returns an InvalidStateError when from -> to is not legal.
func Transition(testID string, from, to Status, op string) error {
	if CanTransition(from, to) {
		return nil
	}
	return &InvalidStateError{TestID: testID, Status: from, Op: op}
}
