package transport

// State is one state of the Transport State Machine (§4.3).
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Connected
	Backoff
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}
