package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/arden/peercall/internal/media"
)

// MediaLink wraps one underlying peer-connection object. A session owns
// exactly one live link at a time.
type MediaLink interface {
	// Start binds internal callbacks and ties the link lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops the underlying connection. Safe to call twice.
	Close()
	// AddLocalTrack attaches a local track to the underlying connection.
	AddLocalTrack(track webrtc.TrackLocal) error
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer applies the remote offer, then creates and sets the
	// local answer.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer applies the remote answer.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. Callers must not
	// invoke it before a remote description is applied.
	AddICECandidate(webrtc.ICECandidateInit) error
	// SignalingState reports the underlying negotiation state.
	SignalingState() webrtc.SignalingState

	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnStateChange sets a callback for connection state transitions.
	OnStateChange(func(webrtc.PeerConnectionState))
}

// LinkFactory builds a fresh MediaLink. Sessions use it to replace an
// abandoned link after losing the glare tie-break.
type LinkFactory func() (MediaLink, error)

// MediaProvider acquires the local capture bundle. Acquire is idempotent:
// while the existing bundle's tracks are live it is returned as is.
type MediaProvider interface {
	Acquire(ctx context.Context, c media.Constraints) (*media.Bundle, error)
}
