package app

// Phase is the negotiation lifecycle of one session. Initial Idle,
// terminal Closed and Failed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseOffering
	PhaseAwaitingAnswer
	PhaseAnswering
	PhaseConnecting
	PhaseConnected
	PhaseDisconnected
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseOffering:
		return "offering"
	case PhaseAwaitingAnswer:
		return "awaiting-answer"
	case PhaseAnswering:
		return "answering"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseClosed:
		return "closed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether the session can no longer make progress.
func (p Phase) terminal() bool { return p == PhaseClosed || p == PhaseFailed }
