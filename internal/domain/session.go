package domain

import "fmt"

// SessionState is the lifecycle state of one connection session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionStreaming
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStreaming:
		return "streaming"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Outbound event names.
const (
	EventHealthData = "healthData"
	EventPrediction = "prediction"
)

// Envelope is the frame written to the client for every event.
// Seq is the tick that produced the event; healthData and prediction of one tick share it.
type Envelope struct {
	Event string `json:"event"`
	Seq   uint64 `json:"seq"`
	Data  any    `json:"data"`
}

// Emitter delivers events to exactly one client connection, in call order.
// Emit returns ErrTransportClosed once the connection is gone.
type Emitter interface {
	Emit(event string, seq uint64, payload any) error
}
