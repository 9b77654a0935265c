package sender

// ConnState is the sender's view of the stream while transmitting an envelope.
//
//	Connected -> Probing -> Reconnecting -> Connected
//	                     \-> Failed        \-> Failed
//
// Failed applies to one envelope only; the next envelope starts from
// Connected with a plain write.
type ConnState int32

const (
	StateConnected ConnState = iota
	StateProbing
	StateReconnecting
	StateFailed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateProbing:
		return "probing"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Phase is the lifecycle of the sender loop.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseDraining
	PhaseStopped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
