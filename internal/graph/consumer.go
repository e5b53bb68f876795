package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/flow"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// Consumer is the downstream sink of an endpoint.
type Consumer interface {
	Push(b core.Buffer) flow.State
	Close() error
}

// Discard accepts and drops every buffer.
type Discard struct{}

func (Discard) Push(core.Buffer) flow.State { return flow.Ok }
func (Discard) Close() error                { return nil }

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// Recorder writes the media of one endpoint under a directory. Packets go
// to a container picked by codec, frames are appended to <name>.raw.
type Recorder struct {
	dir  string
	name string

	mu     sync.Mutex
	rtp    rtpWriter
	raw    *os.File
	closed bool
}

func NewRecorder(dir, name string) *Recorder {
	return &Recorder{dir: dir, name: name}
}

func (r *Recorder) Push(b core.Buffer) flow.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return flow.Flushing
	}
	if b.Packet != nil {
		return r.writePacket(b)
	}
	return r.writeFrame(b)
}

func (r *Recorder) writePacket(b core.Buffer) flow.State {
	if r.rtp == nil {
		w, err := r.openWriter(b.MimeType)
		if err != nil {
			log.Warn().Str("module", "graph").Err(err).Str("endpoint", r.name).Msg("recorder")
			return flow.NotNegotiated
		}
		r.rtp = w
	}
	if err := r.rtp.WriteRTP(b.Packet); err != nil {
		log.Error().Str("module", "graph").Err(err).Str("endpoint", r.name).Msg("recorder write")
		return flow.Error
	}
	return flow.Ok
}

func (r *Recorder) openWriter(mime string) (rtpWriter, error) {
	base := filepath.Join(r.dir, r.name)
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		return oggwriter.New(base+".ogg", 48000, 2)
	case strings.ToLower(webrtc.MimeTypeVP8):
		return ivfwriter.New(base+".ivf", ivfwriter.WithCodec(webrtc.MimeTypeVP8))
	case strings.ToLower(webrtc.MimeTypeVP9):
		return ivfwriter.New(base+".ivf", ivfwriter.WithCodec(webrtc.MimeTypeVP9))
	case strings.ToLower(webrtc.MimeTypeAV1):
		return ivfwriter.New(base+".ivf", ivfwriter.WithCodec(webrtc.MimeTypeAV1))
	case strings.ToLower(webrtc.MimeTypeH264):
		return h264writer.New(base + ".h264")
	}
	return nil, fmt.Errorf("%w: no container for %q", ErrUnsupportedCodec, mime)
}

func (r *Recorder) writeFrame(b core.Buffer) flow.State {
	if r.raw == nil {
		f, err := os.Create(filepath.Join(r.dir, r.name+".raw"))
		if err != nil {
			log.Error().Str("module", "graph").Err(err).Str("endpoint", r.name).Msg("recorder open")
			return flow.Error
		}
		r.raw = f
	}
	if _, err := r.raw.Write(b.Frame); err != nil {
		return flow.Error
	}
	return flow.Ok
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.rtp != nil {
		err = r.rtp.Close()
	}
	if r.raw != nil {
		if cerr := r.raw.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
