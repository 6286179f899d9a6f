package autoprint

// State is the loop's position in its iteration.
type State int32

const (
	// Draining deletes files printed during the previous iteration.
	Draining State = iota
	// Listening blocks on the event source.
	Listening
	// Filtering matches a created file against the watch target.
	Filtering
	// Dispatching waits for a matching file to be ready and prints it.
	Dispatching
	// Stopped is terminal.
	Stopped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Draining:
		return "draining"
	case Listening:
		return "listening"
	case Filtering:
		return "filtering"
	case Dispatching:
		return "dispatching"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
