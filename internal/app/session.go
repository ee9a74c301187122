// Package app holds the call engine: the per-peer negotiation session
// and the orchestrator that owns its lifecycle.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arden/peercall/internal/core"
	"github.com/arden/peercall/internal/domain"
	"github.com/arden/peercall/internal/media"
)

// SessionConfig wires one session. All callbacks fire on the session
// loop goroutine; they must not call back into the session and block.
type SessionConfig struct {
	LocalID  domain.PeerID
	RemoteID domain.PeerID

	Link    core.MediaLink
	NewLink core.LinkFactory
	Sender  core.SignalSender
	Bundle  *media.Bundle

	// InitiateDelay is the fixed grace period between role assignment and
	// the first offer, letting the responder finish subscribing.
	InitiateDelay time.Duration

	OnPhase       func(Phase)
	OnRemoteMedia func()
	OnFailed      func(domain.FailReason)
}

// Session owns one peer-connection link, its role and every negotiation
// buffer. All state mutation happens on a single loop goroutine fed by
// an inbox channel, which reproduces the single-consumer ordering the
// protocol assumes: messages are processed in delivery order, and async
// completions re-enter through the same queue.
type Session struct {
	cfg  SessionConfig
	link core.MediaLink
	log  zerolog.Logger

	// Loop-owned state. Only the run goroutine touches these.
	role              domain.Role
	phase             Phase
	offerInFlight     bool
	answerApplied     bool
	remoteDescApplied bool
	pendingCandidates []webrtc.ICECandidateInit
	pendingAnswer     *webrtc.SessionDescription
	linkState         webrtc.PeerConnectionState
	remoteMediaSeen   bool
	graceTimer        *time.Timer

	// Snapshot mirror for readers outside the loop.
	mu        sync.Mutex
	snapRole  domain.Role
	snapPhase Phase

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession builds a session in Idle. Start must be called before any
// role assignment or message delivery.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		cfg:   cfg,
		link:  cfg.Link,
		log:   log.With().Str("module", "session").Str("remote", string(cfg.RemoteID)).Logger(),
		inbox: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	return s
}

// Start binds link callbacks, attaches local tracks and launches the
// session loop.
func (s *Session) Start(ctx context.Context) error {
	if err := s.bindLink(ctx, s.link); err != nil {
		return err
	}
	go s.run()
	return nil
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// post enqueues fn for the loop. After shutdown it becomes a no-op, so
// late async completions and callbacks are discarded, not applied.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Session) bindLink(ctx context.Context, l core.MediaLink) error {
	l.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		s.post(func() { s.sendCandidate(ci) })
	})
	l.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.post(func() { s.remoteTrack(t) })
	})
	l.OnStateChange(func(st webrtc.PeerConnectionState) {
		s.post(func() { s.linkStateChanged(st) })
	})
	if err := l.Start(ctx); err != nil {
		return err
	}
	for _, t := range s.cfg.Bundle.Locals() {
		if err := l.AddLocalTrack(t.Local()); err != nil {
			return err
		}
	}
	return nil
}

// RemoteID is the identity this session negotiates with.
func (s *Session) RemoteID() domain.PeerID { return s.cfg.RemoteID }

// Phase is a read-only snapshot for callers outside the loop.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapPhase
}

// Role is a read-only snapshot for callers outside the loop.
func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapRole
}

// AssignRole fixes the session role. Assigned once; a second call is
// ignored. Initiators enter Offering and schedule the first offer after
// the grace period; responders enter Waiting.
func (s *Session) AssignRole(role domain.Role) {
	s.post(func() { s.assignRole(role) })
}

// HandleOffer delivers a remote offer.
func (s *Session) HandleOffer(desc webrtc.SessionDescription) {
	s.post(func() { s.handleOffer(desc) })
}

// HandleAnswer delivers a remote answer.
func (s *Session) HandleAnswer(desc webrtc.SessionDescription) {
	s.post(func() { s.handleAnswer(desc) })
}

// HandleCandidate delivers a remote ICE candidate.
func (s *Session) HandleCandidate(ci webrtc.ICECandidateInit) {
	s.post(func() { s.handleCandidate(ci) })
}

// HandleHangup delivers a remote hangup: close without replying.
func (s *Session) HandleHangup() {
	s.post(func() { s.shutdown() })
}

// Teardown closes the session from any state and waits for the loop to
// drain. Idempotent: a second call returns immediately.
func (s *Session) Teardown() {
	s.post(func() { s.shutdown() })
	<-s.done
	// The loop may have died in Failed before the shutdown ran. Teardown
	// still ends in Closed with the link released; the loop is gone, so
	// touching its state here is safe.
	s.mu.Lock()
	settled := s.snapPhase == PhaseClosed
	s.snapPhase = PhaseClosed
	s.mu.Unlock()
	if !settled {
		s.link.Close()
	}
}

// ---- loop-side below ----

func (s *Session) setRole(r domain.Role) {
	s.role = r
	s.mu.Lock()
	s.snapRole = r
	s.mu.Unlock()
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.log.Info().Str("from", s.phase.String()).Str("to", p.String()).Msg("phase")
	s.phase = p
	s.mu.Lock()
	s.snapPhase = p
	s.mu.Unlock()
	if s.cfg.OnPhase != nil {
		s.cfg.OnPhase(p)
	}
}

func (s *Session) assignRole(role domain.Role) {
	if s.role != domain.RoleUnassigned || s.phase != PhaseIdle {
		s.log.Warn().Str("role", role.String()).Msg("role already assigned, ignoring")
		return
	}
	s.setRole(role)
	switch role {
	case domain.RoleInitiator:
		s.setPhase(PhaseOffering)
		if s.cfg.InitiateDelay <= 0 {
			s.post(s.beginOffer)
			return
		}
		s.graceTimer = time.AfterFunc(s.cfg.InitiateDelay, func() {
			s.post(s.beginOffer)
		})
	case domain.RoleResponder:
		s.setPhase(PhaseWaiting)
	}
}

// beginOffer runs after the grace period. The offer itself is created
// off-loop; completion re-enters via offerCreated.
func (s *Session) beginOffer() {
	if s.phase != PhaseOffering || s.offerInFlight {
		return
	}
	s.offerInFlight = true
	link := s.link
	go func() {
		desc, err := link.CreateOffer()
		s.post(func() { s.offerCreated(desc, err) })
	}()
}

func (s *Session) offerCreated(desc webrtc.SessionDescription, err error) {
	s.offerInFlight = false
	if s.phase != PhaseOffering {
		// Demoted or torn down while the offer was being created.
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("create offer")
		s.fail(domain.FailNegotiationTimeout)
		return
	}
	s.send(domain.Envelope{Type: domain.MsgOffer, Description: &desc})
	s.setPhase(PhaseAwaitingAnswer)
	// An answer may have raced ahead of the offer completion.
	if s.pendingAnswer != nil {
		buffered := *s.pendingAnswer
		s.pendingAnswer = nil
		s.applyAnswer(buffered)
	}
}

func (s *Session) handleOffer(desc webrtc.SessionDescription) {
	switch s.phase {
	case PhaseWaiting:
		s.accept(desc)
	case PhaseOffering, PhaseAwaitingAnswer:
		// Glare: both sides produced an offer. The lexically smaller
		// identity keeps initiating; the other abandons its attempt.
		if domain.TieBreakWinner(s.cfg.LocalID, s.cfg.RemoteID) == s.cfg.LocalID {
			s.log.Warn().Msg("glare: won tie-break, ignoring remote offer")
			return
		}
		s.log.Warn().Msg("glare: lost tie-break, demoting to responder")
		if !s.demote() {
			s.fail(domain.FailNegotiationTimeout)
			return
		}
		s.accept(desc)
	default:
		s.log.Warn().Str("phase", s.phase.String()).Msg("offer ignored")
	}
}

// demote abandons a local offer attempt after losing the tie-break: the
// half-negotiated link is replaced with a fresh one and the session
// becomes a responder in Waiting.
func (s *Session) demote() bool {
	if s.cfg.NewLink == nil {
		return false
	}
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.link.Close()
	fresh, err := s.cfg.NewLink()
	if err != nil {
		s.log.Error().Err(err).Msg("replacement link")
		return false
	}
	if err := s.bindLink(context.Background(), fresh); err != nil {
		s.log.Error().Err(err).Msg("bind replacement link")
		fresh.Close()
		return false
	}
	s.link = fresh
	s.remoteDescApplied = false
	s.pendingAnswer = nil
	s.setRole(domain.RoleResponder)
	s.setPhase(PhaseWaiting)
	return true
}

func (s *Session) accept(desc webrtc.SessionDescription) {
	s.setPhase(PhaseAnswering)
	link := s.link
	go func() {
		answer, err := link.CreateAnswer(desc)
		s.post(func() { s.answerCreated(answer, err) })
	}()
}

func (s *Session) answerCreated(answer webrtc.SessionDescription, err error) {
	if s.phase != PhaseAnswering {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("create answer")
		s.fail(domain.FailNegotiationTimeout)
		return
	}
	s.remoteDescApplied = true
	s.flushCandidates()
	s.send(domain.Envelope{Type: domain.MsgAnswer, Description: &answer})
	s.setPhase(PhaseConnecting)
}

func (s *Session) handleAnswer(desc webrtc.SessionDescription) {
	if s.role != domain.RoleInitiator {
		s.log.Warn().Msg("answer ignored: not the initiator")
		return
	}
	// At-most-one apply: a duplicate or retried answer is a no-op.
	if s.answerApplied {
		s.log.Debug().Msg("answer already applied")
		return
	}
	switch s.phase {
	case PhaseOffering:
		// The local offer has not finished being set. Buffer the answer
		// and apply it once the offer completes.
		s.log.Warn().Msg("answer before offer completion, buffering")
		s.pendingAnswer = &desc
	case PhaseAwaitingAnswer:
		if s.link.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
			s.log.Warn().Str("state", s.link.SignalingState().String()).Msg("unexpected signaling state, buffering answer")
			s.pendingAnswer = &desc
			return
		}
		s.applyAnswer(desc)
	default:
		s.log.Warn().Str("phase", s.phase.String()).Msg("answer ignored")
	}
}

func (s *Session) applyAnswer(desc webrtc.SessionDescription) {
	s.answerApplied = true
	if err := s.link.ApplyAnswer(desc); err != nil {
		s.log.Error().Err(err).Msg("apply answer")
		s.fail(domain.FailNegotiationTimeout)
		return
	}
	s.remoteDescApplied = true
	s.flushCandidates()
	s.setPhase(PhaseConnecting)
}

func (s *Session) handleCandidate(ci webrtc.ICECandidateInit) {
	if s.phase.terminal() {
		return
	}
	// Candidates must not reach the link before a remote description is
	// applied; until then they queue in arrival order.
	if !s.remoteDescApplied {
		s.pendingCandidates = append(s.pendingCandidates, ci)
		return
	}
	if err := s.link.AddICECandidate(ci); err != nil {
		s.log.Warn().Err(err).Msg("add candidate")
	}
}

func (s *Session) flushCandidates() {
	for _, ci := range s.pendingCandidates {
		if err := s.link.AddICECandidate(ci); err != nil {
			s.log.Warn().Err(err).Msg("flush candidate")
		}
	}
	s.pendingCandidates = nil
}

func (s *Session) sendCandidate(ci webrtc.ICECandidateInit) {
	if s.phase.terminal() {
		return
	}
	s.send(domain.Envelope{Type: domain.MsgCandidate, Candidate: &ci})
}

func (s *Session) send(env domain.Envelope) {
	env.Target = s.cfg.RemoteID
	if err := s.cfg.Sender.Send(env); err != nil {
		// Transport failures are the relay's problem to report; the
		// session only records them.
		s.log.Error().Err(err).Str("type", string(env.Type)).Msg("signal send")
	}
}

func (s *Session) remoteTrack(t *webrtc.TrackRemote) {
	if s.phase.terminal() {
		return
	}
	s.cfg.Bundle.AddRemote(t)
	if !s.remoteMediaSeen && s.cfg.Bundle.RemoteReady() {
		s.remoteMediaSeen = true
		if s.cfg.OnRemoteMedia != nil {
			s.cfg.OnRemoteMedia()
		}
	}
	s.maybeConnected()
}

func (s *Session) linkStateChanged(st webrtc.PeerConnectionState) {
	if s.phase.terminal() {
		return
	}
	s.linkState = st
	s.log.Info().Str("state", st.String()).Msg("link state")
	switch st {
	case webrtc.PeerConnectionStateConnected:
		s.maybeConnected()
	case webrtc.PeerConnectionStateDisconnected:
		if s.phase == PhaseConnected {
			s.setPhase(PhaseDisconnected)
		}
	case webrtc.PeerConnectionStateFailed:
		s.fail(domain.FailICE)
	}
}

// maybeConnected promotes to Connected on the media milestone: at least
// one live remote track and a non-failed transport. SDP exchange alone
// is not enough.
func (s *Session) maybeConnected() {
	if s.phase != PhaseConnecting && s.phase != PhaseDisconnected {
		return
	}
	if !s.cfg.Bundle.RemoteReady() {
		return
	}
	switch s.linkState {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		return
	}
	s.setPhase(PhaseConnected)
}

// fail is terminal and never retried here; recreation is the
// orchestrator's decision.
func (s *Session) fail(reason domain.FailReason) {
	if s.phase.terminal() {
		return
	}
	s.clear()
	s.link.Close()
	s.setPhase(PhaseFailed)
	if s.cfg.OnFailed != nil {
		s.cfg.OnFailed(reason)
	}
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) shutdown() {
	if s.phase == PhaseClosed {
		s.closeOnce.Do(func() { close(s.done) })
		return
	}
	s.clear()
	s.link.Close()
	s.setPhase(PhaseClosed)
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) clear() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.pendingCandidates = nil
	s.pendingAnswer = nil
	s.offerInFlight = false
}
