package animation

import "fmt"

// State is the lifecycle position of a Handle.
type State int32

const (
	// Idle means the handle has never been started.
	Idle State = iota
	// Running means a run is in progress or about to begin.
	Running
	// Completed means the last run reached its target.
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler so states encode as names in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names MarshalText produces.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	case "completed":
		*s = Completed
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// RestartPolicy decides what Start does while a run is in progress.
type RestartPolicy int

const (
	// RestartIgnore drops the request; the current run continues untouched.
	RestartIgnore RestartPolicy = iota
	// RestartFromCurrent restarts the run from the value it has reached,
	// with the full duration ahead of it.
	RestartFromCurrent
)

func (p RestartPolicy) String() string {
	switch p {
	case RestartIgnore:
		return "ignore"
	case RestartFromCurrent:
		return "restart"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseRestartPolicy maps a config value to a policy. Unknown values return
// RestartIgnore and false.
func ParseRestartPolicy(s string) (RestartPolicy, bool) {
	switch s {
	case "ignore", "":
		return RestartIgnore, true
	case "restart", "restart-from-current":
		return RestartFromCurrent, true
	default:
		return RestartIgnore, false
	}
}
