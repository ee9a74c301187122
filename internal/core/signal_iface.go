package core

import "github.com/arden/peercall/internal/domain"

// SignalSender is the outbound half of the relay transport. The relay
// forwards envelopes verbatim; it never touches media.
// Owned by the adapter; the adapter must Close() it.
type SignalSender interface {
	Send(env domain.Envelope) error
	Close()
}

// SignalRouter receives inbound envelopes decoded by the transport
// adapter, in the order the adapter delivers them.
type SignalRouter interface {
	Inbound(env domain.Envelope)
}

// RouterFunc adapts a function to SignalRouter.
type RouterFunc func(env domain.Envelope)

func (f RouterFunc) Inbound(env domain.Envelope) { f(env) }
