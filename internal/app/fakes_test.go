package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/arden/peercall/internal/domain"
	"github.com/arden/peercall/internal/media"
)

// fakeLink is an in-memory MediaLink that tracks signaling-state rules
// the way a real peer connection enforces them.
type fakeLink struct {
	mu          sync.Mutex
	sigState    webrtc.SignalingState
	remoteDesc  *webrtc.SessionDescription
	applied     []webrtc.ICECandidateInit
	localTracks int
	closed      bool
	answerCount int

	// holdOffer, when set, defers CreateOffer completion until the
	// channel closes. Simulates a slow setLocalDescription.
	holdOffer chan struct{}

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
}

func newFakeLink() *fakeLink {
	return &fakeLink{sigState: webrtc.SignalingStateStable}
}

func (f *fakeLink) Start(context.Context) error { return nil }

func (f *fakeLink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeLink) AddLocalTrack(webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localTracks++
	return nil
}

func (f *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	if f.holdOffer != nil {
		<-f.holdOffer
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigState = webrtc.SignalingStateHaveLocalOffer
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\noffer"}, nil
}

func (f *fakeLink) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &offer
	f.sigState = webrtc.SignalingStateStable
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\nanswer"}, nil
}

func (f *fakeLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sigState != webrtc.SignalingStateHaveLocalOffer {
		return fmt.Errorf("apply answer in state %s", f.sigState)
	}
	f.remoteDesc = &answer
	f.sigState = webrtc.SignalingStateStable
	f.answerCount++
	return nil
}

func (f *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteDesc == nil {
		return errors.New("no remote description")
	}
	f.applied = append(f.applied, ci)
	return nil
}

func (f *fakeLink) SignalingState() webrtc.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sigState
}

func (f *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }
func (f *fakeLink) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	f.onTrack = fn
}
func (f *fakeLink) OnStateChange(fn func(webrtc.PeerConnectionState)) { f.onState = fn }

func (f *fakeLink) fireTrack(t *webrtc.TrackRemote) {
	if f.onTrack != nil {
		f.onTrack(t, nil)
	}
}

func (f *fakeLink) fireState(st webrtc.PeerConnectionState) {
	if f.onState != nil {
		f.onState(st)
	}
}

func (f *fakeLink) appliedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.applied))
	copy(out, f.applied)
	return out
}

func (f *fakeLink) answers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answerCount
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSender records envelopes and optionally forwards them, acting as a
// zero-latency relay.
type fakeSender struct {
	mu      sync.Mutex
	sent    []domain.Envelope
	forward func(domain.Envelope)
}

func (s *fakeSender) Send(env domain.Envelope) error {
	s.mu.Lock()
	s.sent = append(s.sent, env)
	fwd := s.forward
	s.mu.Unlock()
	if fwd != nil {
		fwd(env)
	}
	return nil
}

func (s *fakeSender) Close() {}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) byType(t domain.MessageType) []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Envelope
	for _, e := range s.sent {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// phaseRecorder accumulates the phase history of one session.
type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *phaseRecorder) record(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *phaseRecorder) saw(p Phase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.phases {
		if got == p {
			return true
		}
	}
	return false
}

func testBundle() *media.Bundle {
	return media.NewBundle([]*media.Track{
		media.NewTrack(media.KindAudio, nil),
		media.NewTrack(media.KindVideo, nil),
	}, func() {})
}

// fakeProvider hands out a fresh bundle per acquisition unless failing.
type fakeProvider struct {
	mu       sync.Mutex
	err      error
	acquired int
	bundle   *media.Bundle
}

func (p *fakeProvider) Acquire(context.Context, media.Constraints) (*media.Bundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	if p.bundle == nil || !p.bundle.Live() {
		p.bundle = testBundle()
	}
	return p.bundle, nil
}

// linkRecorder is a LinkFactory remembering every link it built.
type linkRecorder struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (r *linkRecorder) factory() (l *fakeLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l = newFakeLink()
	r.links = append(r.links, l)
	return l
}

func (r *linkRecorder) all() []*fakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*fakeLink, len(r.links))
	copy(out, r.links)
	return out
}
