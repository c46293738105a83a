package session

// State is the lifecycle of the controller's current session attempt.
//
// Idle → Connecting → Active → Closing → Closed, with Error reachable from
// Connecting and Active. Stop and the error path both converge on Closed.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// status is the short, non-technical line surfaced to presentation layers.
// Detailed failure reasons go to the log, never here.
func (s State) status() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting…"
	case StateActive:
		return "Connected, speak anytime"
	case StateClosing:
		return "Disconnecting…"
	case StateError:
		return "Something went wrong, please try again"
	case StateClosed:
		return "Disconnected"
	}
	return ""
}

// startable reports whether Start may begin a fresh attempt from s.
func (s State) startable() bool {
	return s == StateIdle || s == StateClosed || s == StateError
}
