package media

import (
	"errors"
	"io"
	"os"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// FileOpener plays prerecorded media in place of live capture devices:
// VP8 video from an IVF file and Opus audio from an Ogg file. Useful for
// headless runs and soak tests; the taxonomy mapping treats a missing
// file as a missing device.
type FileOpener struct {
	AudioPath string
	VideoPath string
}

func (o FileOpener) OpenAudio(Constraints) (Source, error) {
	f, err := os.Open(o.AudioPath)
	if err != nil {
		return nil, err
	}
	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &oggSource{f: f, ogg: ogg}, nil
}

func (o FileOpener) OpenVideo(c Constraints) (Source, error) {
	f, err := os.Open(o.VideoPath)
	if err != nil {
		return nil, err
	}
	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	frame := time.Second / time.Duration(max(c.VideoMaxFrameRate, 1))
	return &ivfSource{f: f, ivf: ivf, header: header, frame: frame}, nil
}

type ivfSource struct {
	f      *os.File
	ivf    *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
	frame  time.Duration
	primed bool
}

func (s *ivfSource) NextSample() (pionmedia.Sample, error) {
	if s.primed {
		// Pace playback at the constrained frame rate.
		time.Sleep(s.frame)
	}
	s.primed = true
	payload, _, err := s.ivf.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		// Loop the clip; capture devices never run dry.
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return pionmedia.Sample{}, err
		}
		if s.ivf, s.header, err = ivfreader.NewWith(s.f); err != nil {
			return pionmedia.Sample{}, err
		}
		payload, _, err = s.ivf.ParseNextFrame()
		if err != nil {
			return pionmedia.Sample{}, err
		}
	} else if err != nil {
		return pionmedia.Sample{}, err
	}
	return pionmedia.Sample{Data: payload, Duration: s.frame}, nil
}

func (s *ivfSource) Close() error { return s.f.Close() }

const oggSampleRate = 48000

type oggSource struct {
	f           *os.File
	ogg         *oggreader.OggReader
	lastGranule uint64
	primed      bool
	lastDur     time.Duration
}

func (s *oggSource) NextSample() (pionmedia.Sample, error) {
	if s.primed && s.lastDur > 0 {
		time.Sleep(s.lastDur)
	}
	s.primed = true
	payload, header, err := s.ogg.ParseNextPage()
	if errors.Is(err, io.EOF) {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return pionmedia.Sample{}, err
		}
		if s.ogg, _, err = oggreader.NewWith(s.f); err != nil {
			return pionmedia.Sample{}, err
		}
		s.lastGranule = 0
		payload, header, err = s.ogg.ParseNextPage()
		if err != nil {
			return pionmedia.Sample{}, err
		}
	} else if err != nil {
		return pionmedia.Sample{}, err
	}

	sampleCount := header.GranulePosition - s.lastGranule
	s.lastGranule = header.GranulePosition
	s.lastDur = time.Duration(sampleCount) * time.Second / oggSampleRate
	return pionmedia.Sample{Data: payload, Duration: s.lastDur}, nil
}

func (s *oggSource) Close() error { return s.f.Close() }
