package dispatcher

// State is the dispatcher's position in its per-request cycle:
// Idle -> Resolving -> Applying -> Idle.
type State int32

const (
	Idle State = iota
	Resolving
	Applying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Applying:
		return "applying"
	default:
		return "unknown"
	}
}
