package broker

// State is the connectivity state of a Manager.
type State int32

// Connection states
const (
	// StateDisconnected means no connection exists.
	StateDisconnected State = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means a connection and channel are usable.
	StateConnected
	// StateDegraded means the connection is alive but its channel was closed.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
