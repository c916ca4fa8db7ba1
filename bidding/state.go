package bidding

import "fmt"

// State is the lifecycle position of one bidding run.
type State int

const (
	StateIdle State = iota
	StatePartitioned
	StateRunning
	StateCompleted
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePartitioned:
		return "partitioned"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut
}
