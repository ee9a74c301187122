package domain

import "github.com/pion/webrtc/v4"

// MessageType discriminates signal envelopes on the relay.
type MessageType string

const (
	MsgPeerJoined MessageType = "peer-joined"
	MsgPeerLeft   MessageType = "peer-left"
	MsgOffer      MessageType = "offer"
	MsgAnswer     MessageType = "answer"
	MsgCandidate  MessageType = "candidate"
	MsgHangup     MessageType = "hangup"
)

// Envelope is the JSON message exchanged over the relay. The relay only
// forwards these; it never inspects descriptions or candidates.
type Envelope struct {
	Type MessageType `json:"type"`
	// From is filled by the relay on delivery; Target by the sender.
	From   PeerID `json:"from,omitempty"`
	Target PeerID `json:"target,omitempty"`

	// InitiatorHint is only meaningful on peer-joined.
	InitiatorHint bool `json:"initiatorHint,omitempty"`

	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}
