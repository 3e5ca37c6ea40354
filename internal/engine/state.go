package engine

// State is a position in the engine's lifecycle state machine (spec §4.5).
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	MetadataCorrupted
	Shutting
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Loading:
		return "Loading"
	case Ready:
		return "Ready"
	case MetadataCorrupted:
		return "MetadataCorrupted"
	case Shutting:
		return "Shutting"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
