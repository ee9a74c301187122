// Package domain contains the shared value types of the call engine:
// peer identity, roles, signal envelopes and the error taxonomies. It
// stays transport- and UI-agnostic.
package domain

// PeerID is an opaque transport-level address (relay connection id),
// not a user identity.
type PeerID string

// Role of a session in the offer/answer handshake. Assigned once per
// session; changing it requires a full teardown.
type Role int

const (
	RoleUnassigned Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unassigned"
	}
}

// TieBreakWinner picks the peer that initiates when both sides claim the
// initiator role. Lexically smaller id wins, which is deterministic and
// symmetric: both sides compute the same winner without sharing state.
func TieBreakWinner(a, b PeerID) PeerID {
	if a < b {
		return a
	}
	return b
}

// ReconcileRole maps the application-supplied initiator hint to a Role.
// The hint decides the normal case; conflicting hints (both sides told to
// initiate) surface later as glare and are resolved with TieBreakWinner.
func ReconcileRole(hint bool) Role {
	if hint {
		return RoleInitiator
	}
	return RoleResponder
}
