package client

// ConnState is the externally visible connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateErrored
)

// String returns the status kind as shown to operators.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "error"
	default:
		return "disconnected"
	}
}

// Status is pushed to the Monitor on every connection state change.
// Label carries detail beyond the kind, such as the close code in
// "disconnected (1006)".
type Status struct {
	Kind  ConnState
	Label string
}

// Monitor receives connection status notifications. Implementations
// must not block and must not call back into the client from the
// notification.
type Monitor interface {
	OnStatusChange(status Status)
}

// MonitorFunc adapts a function to the Monitor interface.
type MonitorFunc func(status Status)

// OnStatusChange implements Monitor.
func (f MonitorFunc) OnStatusChange(status Status) {
	f(status)
}
