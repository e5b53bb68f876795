package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/rtcsub/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

var errEmptyPayload = errors.New("empty payload")

// g711Packet depacketizes PCMU/PCMA: every packet is a complete frame.
type g711Packet struct{}

func (g711Packet) Unmarshal(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errEmptyPayload
	}
	return payload, nil
}

func (g711Packet) IsPartitionHead([]byte) bool      { return true }
func (g711Packet) IsPartitionTail(bool, []byte) bool { return true }

func depacketizerFor(mime string) (rtp.Depacketizer, error) {
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		return &codecs.OpusPacket{}, nil
	case strings.ToLower(webrtc.MimeTypePCMU), strings.ToLower(webrtc.MimeTypePCMA):
		return g711Packet{}, nil
	case strings.ToLower(webrtc.MimeTypeVP8):
		return &codecs.VP8Packet{}, nil
	case strings.ToLower(webrtc.MimeTypeVP9):
		return &codecs.VP9Packet{}, nil
	case strings.ToLower(webrtc.MimeTypeH264):
		return &codecs.H264Packet{}, nil
	case strings.ToLower(webrtc.MimeTypeAV1):
		return &codecs.AV1Depacketizer{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
}

// assembler turns RTP packets into frames.
type assembler struct {
	mime string
	sb   *samplebuilder.SampleBuilder
}

func newAssembler(c webrtc.RTPCodecParameters, maxLate uint16) (*assembler, error) {
	d, err := depacketizerFor(c.MimeType)
	if err != nil {
		return nil, err
	}
	return &assembler{
		mime: c.MimeType,
		sb:   samplebuilder.New(maxLate, d, c.ClockRate),
	}, nil
}

// process passes frame buffers through and assembles packet buffers.
func (a *assembler) process(b core.Buffer) []core.Buffer {
	if b.Packet == nil {
		return []core.Buffer{b}
	}
	a.sb.Push(b.Packet)
	var out []core.Buffer
	for s := a.sb.Pop(); s != nil; s = a.sb.Pop() {
		out = append(out, core.Buffer{
			Frame:     s.Data,
			Duration:  s.Duration,
			Timestamp: s.PacketTimestamp,
			MimeType:  a.mime,
		})
	}
	return out
}

// Decoder turns assembled frames into raw media.
type Decoder interface {
	Decode(mime string, in core.Buffer) (core.Buffer, error)
}

// FrameDecoder marks assembled frames as decoded without touching the payload.
type FrameDecoder struct{}

func (FrameDecoder) Decode(_ string, in core.Buffer) (core.Buffer, error) {
	if in.Frame == nil {
		return in, errEmptyPayload
	}
	in.Decoded = true
	return in, nil
}
