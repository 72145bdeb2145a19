package monitor

// ConnState is the connection lifecycle state of a Client.
//
// Transitions:
//
//	disconnected/error --Connect--> connecting --open--> connected
//	connected --abnormal close--> disconnected --scheduler--> reconnecting --> connecting
//	connected --Disconnect--> disconnected (no reconnect)
//	any --transport error--> error
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String returns the lowercase name used in logs and API responses.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText makes ConnState render as its name in JSON responses.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
