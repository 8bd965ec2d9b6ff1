package realtime

// State is the lifecycle state of the realtime connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnectPending
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnectPending:
		return "reconnect_pending"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type transition struct {
	from State
	to   State
}
