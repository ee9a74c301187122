package media

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/arden/peercall/internal/domain"
)

// Constraints is the capture configuration surface. Defaults favor the
// lowest bandwidth acceptable for a two-party call.
type Constraints struct {
	VideoIdealWidth   int  `mapstructure:"video_ideal_width" json:"videoIdealWidth"`
	VideoIdealHeight  int  `mapstructure:"video_ideal_height" json:"videoIdealHeight"`
	VideoMaxWidth     int  `mapstructure:"video_max_width" json:"videoMaxWidth"`
	VideoMaxHeight    int  `mapstructure:"video_max_height" json:"videoMaxHeight"`
	VideoMaxFrameRate int  `mapstructure:"video_max_frame_rate" json:"videoMaxFrameRate"`
	EchoCancellation  bool `mapstructure:"echo_cancellation" json:"echoCancellation"`
	NoiseSuppression  bool `mapstructure:"noise_suppression" json:"noiseSuppression"`
	AutoGainControl   bool `mapstructure:"auto_gain_control" json:"autoGainControl"`
}

// DefaultConstraints is 640x480 capped at 30fps with all audio
// processing on.
func DefaultConstraints() Constraints {
	return Constraints{
		VideoIdealWidth:   640,
		VideoIdealHeight:  480,
		VideoMaxWidth:     1280,
		VideoMaxHeight:    720,
		VideoMaxFrameRate: 30,
		EchoCancellation:  true,
		NoiseSuppression:  true,
		AutoGainControl:   true,
	}
}

// Source delivers encoded samples from one capture device.
type Source interface {
	NextSample() (pionmedia.Sample, error)
	Close() error
}

// Opener opens the capture devices. Implementations surface device-level
// failures; the acquirer maps them onto the closed error taxonomy.
type Opener interface {
	OpenAudio(c Constraints) (Source, error)
	OpenVideo(c Constraints) (Source, error)
}

// Device-level sentinels openers may return.
var (
	ErrNoDevice   = errors.New("capture device not found")
	ErrDeviceBusy = errors.New("capture device busy")
)

// Acquirer opens camera and microphone once and hands out the shared
// bundle. It is the only component allowed to stop local tracks.
type Acquirer struct {
	opener Opener

	mu     sync.Mutex
	bundle *Bundle
}

func NewAcquirer(opener Opener) *Acquirer {
	return &Acquirer{opener: opener}
}

// Acquire opens both devices and starts the sample pumps. Idempotent:
// while the current bundle is live it is returned without reopening. On
// failure no partial state is retained.
func (a *Acquirer) Acquire(ctx context.Context, c Constraints) (*Bundle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bundle != nil && a.bundle.Live() {
		return a.bundle, nil
	}
	a.bundle = nil

	audioSrc, err := a.opener.OpenAudio(c)
	if err != nil {
		return nil, classify(err)
	}
	videoSrc, err := a.opener.OpenVideo(c)
	if err != nil {
		_ = audioSrc.Close()
		return nil, classify(err)
	}

	streamID := uuid.NewString()
	audioLocal, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		_ = audioSrc.Close()
		_ = videoSrc.Close()
		return nil, classify(err)
	}
	videoLocal, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		_ = audioSrc.Close()
		_ = videoSrc.Close()
		return nil, classify(err)
	}

	audio := NewTrack(KindAudio, audioLocal)
	video := NewTrack(KindVideo, videoLocal)

	pumpCtx, cancel := context.WithCancel(ctx)
	stop := func() {
		cancel()
		_ = audioSrc.Close()
		_ = videoSrc.Close()
	}
	b := NewBundle([]*Track{audio, video}, stop)

	go pump(pumpCtx, audio, audioLocal, audioSrc)
	go pump(pumpCtx, video, videoLocal, videoSrc)

	a.bundle = b
	log.Info().Str("module", "media").Str("stream_id", streamID).Msg("local capture acquired")
	return b, nil
}

// pump copies samples from the source to the pion track, honoring the
// enable gate: a disabled track drops samples but keeps reading so the
// device stays warm.
func pump(ctx context.Context, t *Track, out *webrtc.TrackLocalStaticSample, src Source) {
	for {
		if ctx.Err() != nil {
			return
		}
		sample, err := src.NextSample()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, fs.ErrClosed) {
				log.Warn().Err(err).Str("module", "media").Str("kind", string(t.Kind())).Msg("capture source ended")
			}
			return
		}
		if !t.Enabled() {
			continue
		}
		if err := out.WriteSample(sample); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("kind", string(t.Kind())).Msg("write sample")
			return
		}
	}
}

// classify maps device failures onto the closed taxonomy. Errors already
// classified pass through.
func classify(err error) *domain.MediaError {
	if me, ok := domain.AsMediaError(err); ok {
		return me
	}
	switch {
	case errors.Is(err, os.ErrPermission):
		return domain.NewMediaError(domain.MediaPermissionDenied, err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrNoDevice):
		return domain.NewMediaError(domain.MediaDeviceNotFound, err)
	case errors.Is(err, ErrDeviceBusy):
		return domain.NewMediaError(domain.MediaDeviceBusy, err)
	default:
		return domain.NewMediaError(domain.MediaUnknown, err)
	}
}
