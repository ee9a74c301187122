// Package media owns local capture acquisition and the bundle shared by
// sequential sessions. Sessions read tracks to attach them to a peer
// object but never stop them directly.
package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// TrackKind distinguishes the two local capture tracks.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track pairs a local pion track with its enable gate. Disabling a track
// mutes it (samples are dropped) without stopping the hardware, so no
// renegotiation happens on toggle.
type Track struct {
	kind    TrackKind
	local   webrtc.TrackLocal
	enabled atomic.Bool
}

// NewTrack wraps a local pion track; it starts enabled.
func NewTrack(kind TrackKind, local webrtc.TrackLocal) *Track {
	t := &Track{kind: kind, local: local}
	t.enabled.Store(true)
	return t
}

func (t *Track) Kind() TrackKind          { return t.kind }
func (t *Track) Local() webrtc.TrackLocal { return t.local }
func (t *Track) Enabled() bool            { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool)       { t.enabled.Store(on) }

// Bundle is the local/remote capture pair for one call. Local tracks are
// created once and stopped only on bundle Stop, never mid-session.
type Bundle struct {
	mu     sync.RWMutex
	local  []*Track
	remote []*webrtc.TrackRemote
	stop   func()
	live   bool
}

// NewBundle wraps already-opened local tracks. stop releases the
// underlying capture resources and is invoked at most once.
func NewBundle(local []*Track, stop func()) *Bundle {
	return &Bundle{local: local, stop: stop, live: true}
}

// Locals returns the local tracks in attach order.
func (b *Bundle) Locals() []*Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Track, len(b.local))
	copy(out, b.local)
	return out
}

func (b *Bundle) track(kind TrackKind) *Track {
	for _, t := range b.local {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// SetEnabled flips the enable gate of one local track. Returns false if
// no track of that kind exists.
func (b *Bundle) SetEnabled(kind TrackKind, on bool) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := b.track(kind)
	if t == nil {
		return false
	}
	t.SetEnabled(on)
	return true
}

// Enabled reports the enable gate of one local track.
func (b *Bundle) Enabled(kind TrackKind) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := b.track(kind)
	return t != nil && t.Enabled()
}

// AddRemote records an arriving remote track.
func (b *Bundle) AddRemote(t *webrtc.TrackRemote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = append(b.remote, t)
}

// ClearRemote drops remote tracks, keeping local capture warm. Used when
// a session ends but the bundle survives for the next one.
func (b *Bundle) ClearRemote() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = nil
}

// RemoteReady reports whether at least one remote track arrived.
func (b *Bundle) RemoteReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.remote) > 0
}

// Live reports whether local capture is still running.
func (b *Bundle) Live() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live
}

// Stop releases local capture resources. Idempotent.
func (b *Bundle) Stop() {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.live = false
	b.remote = nil
	b.mu.Unlock()
	if stop != nil {
		stop()
	}
}
