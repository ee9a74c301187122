package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arden/peercall/internal/core"
	"github.com/arden/peercall/internal/domain"
	"github.com/arden/peercall/internal/media"
)

// OrchestratorConfig wires the engine's collaborators.
type OrchestratorConfig struct {
	LocalID  domain.PeerID
	Provider core.MediaProvider
	Sender   core.SignalSender
	NewLink  core.LinkFactory
	Events   core.Events

	Constraints   media.Constraints
	InitiateDelay time.Duration
	// KeepMediaWarm keeps local capture open across sessions in the same
	// room instead of releasing hardware on peer departure.
	KeepMediaWarm bool
}

// Orchestrator reacts to peer presence notifications, owns the session
// lifecycle and the media bundle, and projects status for the UI. Only
// one session is current at a time; replacing it tears the old one down
// first.
type Orchestrator struct {
	ctx context.Context
	cfg OrchestratorConfig

	// mu guards lifecycle: session, bundle, presence, generation.
	mu       sync.Mutex
	sess     *Session
	bundle   *media.Bundle
	gen      uint64
	havePeer bool
	remote   domain.PeerID
	hint     bool

	// current mirrors sess for lock-free reads on the inbound path, so a
	// teardown holding mu can never block message routing.
	current atomic.Pointer[Session]

	// statusMu guards the UI projection only. Session callbacks run on
	// the session loop and must never take mu.
	statusMu sync.Mutex
	status   core.Status
	lastErr  string
}

func NewOrchestrator(ctx context.Context, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Events == nil {
		cfg.Events = core.NopEvents{}
	}
	return &Orchestrator{ctx: ctx, cfg: cfg, status: core.StatusIdle}
}

// PeerAvailable handles the surrounding application's notification that
// a remote participant is present. initiatorHint says whether this side
// should place the call.
func (o *Orchestrator) PeerAvailable(remote domain.PeerID, initiatorHint bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != nil && o.sess.RemoteID() == remote && !o.sess.Phase().terminal() {
		log.Debug().Str("module", "orch").Str("remote", string(remote)).Msg("peer already current")
		return
	}
	o.startLocked(remote, initiatorHint)
}

// PeerGone tears the current session down. Hardware is released unless
// keep-media-warm is configured.
func (o *Orchestrator) PeerGone() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.havePeer = false
	o.gen++
	o.teardownLocked()
	o.setStatus(core.StatusClosed)
}

// Restart is the force-timeout hook for the surrounding application: it
// hangs up, tears down and replays the last presence notification. The
// retry policy itself lives outside the core.
func (o *Orchestrator) Restart() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.havePeer {
		return
	}
	if err := o.cfg.Sender.Send(domain.Envelope{Type: domain.MsgHangup, Target: o.remote}); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("hangup send")
	}
	o.startLocked(o.remote, o.hint)
}

func (o *Orchestrator) startLocked(remote domain.PeerID, initiatorHint bool) {
	o.teardownLocked()
	o.havePeer = true
	o.remote = remote
	o.hint = initiatorHint
	o.gen++
	gen := o.gen

	o.setStatus(core.StatusRequestingMedia)
	go o.acquireAndDial(gen, remote, initiatorHint)
}

// acquireAndDial is the async arm of startLocked. The generation counter
// discards the completion if presence changed mid-acquisition.
func (o *Orchestrator) acquireAndDial(gen uint64, remote domain.PeerID, initiatorHint bool) {
	bundle, err := o.cfg.Provider.Acquire(o.ctx, o.cfg.Constraints)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.havePeer {
		// Stale completion: presence changed while acquiring. The bundle
		// stays with the provider; nothing to undo here.
		return
	}
	if err != nil {
		o.mediaFailed(err)
		return
	}
	o.bundle = bundle

	link, err := o.cfg.NewLink()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("create link")
		o.setStatusErr(core.StatusFailed, string(domain.FailNegotiationTimeout))
		return
	}

	sess := NewSession(SessionConfig{
		LocalID:       o.cfg.LocalID,
		RemoteID:      remote,
		Link:          link,
		NewLink:       o.cfg.NewLink,
		Sender:        o.cfg.Sender,
		Bundle:        bundle,
		InitiateDelay: o.cfg.InitiateDelay,
		OnPhase:       o.sessionPhase,
		OnRemoteMedia: func() { o.cfg.Events.RemoteMediaAvailable(bundle) },
		OnFailed:      o.sessionFailed,
	})
	if err := sess.Start(o.ctx); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("start session")
		link.Close()
		o.setStatusErr(core.StatusFailed, string(domain.FailNegotiationTimeout))
		return
	}
	o.sess = sess
	o.current.Store(sess)
	o.setStatus(core.StatusReady)
	sess.AssignRole(domain.ReconcileRole(initiatorHint))
}

func (o *Orchestrator) mediaFailed(err error) {
	me, ok := domain.AsMediaError(err)
	if !ok {
		me = domain.NewMediaError(domain.MediaUnknown, err)
	}
	log.Error().Err(err).Str("module", "orch").Str("kind", string(me.Kind)).Msg("media acquisition")
	o.cfg.Events.MediaError(me.Kind, me.Message())
	o.setStatusErr(core.StatusFailed, me.Message())
}

func (o *Orchestrator) teardownLocked() {
	if o.sess != nil {
		s := o.sess
		o.sess = nil
		o.current.Store(nil)
		s.Teardown()
	}
	if o.bundle != nil {
		if o.cfg.KeepMediaWarm {
			o.bundle.ClearRemote()
		} else {
			o.bundle.Stop()
			o.bundle = nil
		}
	}
}

// Inbound routes a relay envelope. Negotiation messages reach the
// current session only when the sender matches its remote identity,
// which drops stale traffic from a previous session in the same room.
func (o *Orchestrator) Inbound(env domain.Envelope) {
	switch env.Type {
	case domain.MsgPeerJoined:
		o.PeerAvailable(env.From, env.InitiatorHint)
		return
	case domain.MsgPeerLeft:
		o.PeerGone()
		return
	}

	sess := o.current.Load()
	if sess == nil || sess.RemoteID() != env.From {
		log.Debug().Str("module", "orch").Str("from", string(env.From)).Str("type", string(env.Type)).Msg("stale sender, dropped")
		return
	}

	switch env.Type {
	case domain.MsgOffer:
		if env.Description == nil {
			log.Warn().Str("module", "orch").Msg("malformed offer")
			return
		}
		sess.HandleOffer(*env.Description)
	case domain.MsgAnswer:
		if env.Description == nil {
			log.Warn().Str("module", "orch").Msg("malformed answer")
			return
		}
		sess.HandleAnswer(*env.Description)
	case domain.MsgCandidate:
		if env.Candidate == nil {
			log.Warn().Str("module", "orch").Msg("malformed candidate")
			return
		}
		sess.HandleCandidate(*env.Candidate)
	case domain.MsgHangup:
		sess.HandleHangup()
	default:
		log.Warn().Str("module", "orch").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

// ---- control surface ----

// StatusSnapshot is the read-only view the UI binds to.
type StatusSnapshot struct {
	Status       core.Status `json:"status"`
	LastError    string      `json:"lastError,omitempty"`
	MicEnabled   bool        `json:"micEnabled"`
	VideoEnabled bool        `json:"videoEnabled"`
}

// GetStatus returns the current projection.
func (o *Orchestrator) GetStatus() StatusSnapshot {
	o.mu.Lock()
	b := o.bundle
	o.mu.Unlock()
	o.statusMu.Lock()
	snap := StatusSnapshot{Status: o.status, LastError: o.lastErr}
	o.statusMu.Unlock()
	if b != nil {
		snap.MicEnabled = b.Enabled(media.KindAudio)
		snap.VideoEnabled = b.Enabled(media.KindVideo)
	}
	return snap
}

// ToggleMic flips the microphone gate. No-op without a bundle; returns
// the resulting state.
func (o *Orchestrator) ToggleMic() bool { return o.toggle(media.KindAudio) }

// ToggleVideo flips the camera gate. No-op without a bundle; returns the
// resulting state.
func (o *Orchestrator) ToggleVideo() bool { return o.toggle(media.KindVideo) }

func (o *Orchestrator) toggle(kind media.TrackKind) bool {
	o.mu.Lock()
	b := o.bundle
	o.mu.Unlock()
	if b == nil {
		return false
	}
	next := !b.Enabled(kind)
	b.SetEnabled(kind, next)
	log.Info().Str("module", "orch").Str("kind", string(kind)).Bool("enabled", next).Msg("track toggled")
	return next
}

// ---- session callbacks (run on the session loop; statusMu only) ----

func (o *Orchestrator) sessionPhase(p Phase) {
	switch p {
	case PhaseWaiting, PhaseIdle:
		o.setStatus(core.StatusReady)
	case PhaseOffering, PhaseAwaitingAnswer, PhaseAnswering, PhaseConnecting:
		o.setStatus(core.StatusConnecting)
	case PhaseConnected:
		o.setStatus(core.StatusConnected)
	case PhaseDisconnected:
		o.setStatus(core.StatusDisconnected)
	case PhaseFailed:
		o.setStatus(core.StatusFailed)
	case PhaseClosed:
		o.setStatus(core.StatusClosed)
	}
}

func (o *Orchestrator) sessionFailed(reason domain.FailReason) {
	o.statusMu.Lock()
	o.lastErr = string(reason)
	o.statusMu.Unlock()
}

func (o *Orchestrator) setStatus(s core.Status) {
	o.statusMu.Lock()
	changed := o.status != s
	o.status = s
	if changed && s != core.StatusFailed {
		o.lastErr = ""
	}
	o.statusMu.Unlock()
	if changed {
		o.cfg.Events.ConnectionStateChanged(s)
	}
}

func (o *Orchestrator) setStatusErr(s core.Status, msg string) {
	o.statusMu.Lock()
	changed := o.status != s
	o.status = s
	o.lastErr = msg
	o.statusMu.Unlock()
	if changed {
		o.cfg.Events.ConnectionStateChanged(s)
	}
}
