package media

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arden/peercall/internal/domain"
)

// stubSource hands out silence samples until closed.
type stubSource struct {
	mu     sync.Mutex
	closed bool
	reads  int
}

func (s *stubSource) NextSample() (pionmedia.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pionmedia.Sample{}, os.ErrClosed
	}
	s.reads++
	time.Sleep(time.Millisecond)
	return pionmedia.Sample{Data: []byte{0}, Duration: 20 * time.Millisecond}, nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type stubOpener struct {
	audioErr error
	videoErr error

	mu     sync.Mutex
	audios []*stubSource
	videos []*stubSource
}

func (o *stubOpener) OpenAudio(Constraints) (Source, error) {
	if o.audioErr != nil {
		return nil, o.audioErr
	}
	src := &stubSource{}
	o.mu.Lock()
	o.audios = append(o.audios, src)
	o.mu.Unlock()
	return src, nil
}

func (o *stubOpener) OpenVideo(Constraints) (Source, error) {
	if o.videoErr != nil {
		return nil, o.videoErr
	}
	src := &stubSource{}
	o.mu.Lock()
	o.videos = append(o.videos, src)
	o.mu.Unlock()
	return src, nil
}

func (o *stubOpener) lastAudio() *stubSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.audios) == 0 {
		return nil
	}
	return o.audios[len(o.audios)-1]
}

func (o *stubOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.audios) + len(o.videos)
}

func TestAcquireIdempotentWhileLive(t *testing.T) {
	opener := &stubOpener{}
	acq := NewAcquirer(opener)

	first, err := acq.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	second, err := acq.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	assert.Same(t, first, second, "live bundle must be shared, not reopened")
	assert.Equal(t, 2, opener.openCount())

	first.Stop()
	assert.False(t, first.Live())

	third, err := acq.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	assert.NotSame(t, first, third, "stopped bundle must be reopened")
	assert.Equal(t, 4, opener.openCount())
	third.Stop()
}

func TestAcquireNoPartialState(t *testing.T) {
	opener := &stubOpener{videoErr: ErrNoDevice}
	acq := NewAcquirer(opener)

	_, err := acq.Acquire(context.Background(), DefaultConstraints())
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return opener.lastAudio().isClosed()
	}, 2*time.Second, 5*time.Millisecond, "audio source must be released when video open fails")
}

func TestAcquireErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.MediaErrorKind
	}{
		{"permission", os.ErrPermission, domain.MediaPermissionDenied},
		{"not found", ErrNoDevice, domain.MediaDeviceNotFound},
		{"busy", ErrDeviceBusy, domain.MediaDeviceBusy},
		{"other", fmt.Errorf("driver exploded"), domain.MediaUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acq := NewAcquirer(&stubOpener{audioErr: tc.err})
			_, err := acq.Acquire(context.Background(), DefaultConstraints())
			require.Error(t, err)
			me, ok := domain.AsMediaError(err)
			require.True(t, ok, "acquire errors carry the taxonomy")
			assert.Equal(t, tc.want, me.Kind)
		})
	}
}

func TestMuteKeepsCaptureRunning(t *testing.T) {
	opener := &stubOpener{}
	acq := NewAcquirer(opener)

	bundle, err := acq.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	defer bundle.Stop()

	require.True(t, bundle.Enabled(KindAudio))
	bundle.SetEnabled(KindAudio, false)
	assert.False(t, bundle.Enabled(KindAudio))
	assert.True(t, bundle.Live(), "mute is a gate, not a stop")

	// The pump keeps draining the device while muted.
	audio := opener.lastAudio()
	before := audio.readCount()
	require.Eventually(t, func() bool {
		return audio.readCount() > before
	}, 2*time.Second, 5*time.Millisecond)

	bundle.SetEnabled(KindAudio, true)
	assert.True(t, bundle.Enabled(KindAudio))
}

func TestBundleStopIdempotent(t *testing.T) {
	opener := &stubOpener{}
	acq := NewAcquirer(opener)

	bundle, err := acq.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	bundle.Stop()
	bundle.Stop()
	assert.False(t, bundle.Live())
	assert.True(t, opener.lastAudio().isClosed())
}

func TestBundleRemoteTracks(t *testing.T) {
	bundle := NewBundle(nil, func() {})
	assert.False(t, bundle.RemoteReady())

	bundle.AddRemote(nil)
	assert.True(t, bundle.RemoteReady())

	bundle.ClearRemote()
	assert.False(t, bundle.RemoteReady())
}
