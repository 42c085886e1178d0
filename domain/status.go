package domain

// Status is the lifecycle state of a session.
type Status int

const (
	// StatusDisconnected is the initial state and the state after an explicit disconnect.
	StatusDisconnected Status = iota

	// StatusConnecting is the first connection attempt.
	StatusConnecting

	// StatusConnected means the transport session is live.
	StatusConnected

	// StatusReconnecting means the session was lost and is being restored.
	StatusReconnecting

	// StatusError is terminal until the user explicitly connects again.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
