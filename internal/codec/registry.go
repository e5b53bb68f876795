// Package codec is the static catalog of negotiable codecs.
package codec

import (
	"strconv"
	"strings"
	"sync"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// KindOf maps an SDP media name to a Kind. Non audio/video media report false.
func KindOf(media string) (Kind, bool) {
	switch Kind(media) {
	case KindAudio, KindVideo:
		return Kind(media), true
	}
	return "", false
}

func (k Kind) RTPCodecType() webrtc.RTPCodecType {
	if k == KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

// Raw returns the decoded capability for the kind.
func (k Kind) Raw() caps.Set {
	if k == KindVideo {
		return caps.RawVideo
	}
	return caps.RawAudio
}

// Codec is an immutable codec descriptor.
type Codec struct {
	Name        string
	Kind        Kind
	PayloadType webrtc.PayloadType
	Capability  webrtc.RTPCodecCapability
	HasDecoder  bool
}

// Caps returns the encoded RTP capability of the codec.
func (c Codec) Caps() caps.Set {
	s := caps.NewStructure(caps.RTPName)
	s.Fields["media"] = string(c.Kind)
	s.Fields["encoding-name"] = c.Name
	s.Fields["clock-rate"] = strconv.FormatUint(uint64(c.Capability.ClockRate), 10)
	if c.Capability.Channels > 1 {
		s.Fields["encoding-params"] = strconv.FormatUint(uint64(c.Capability.Channels), 10)
	}
	return caps.Set{s}
}

// Registry answers codec lookups. It is immutable once built.
type Registry struct {
	codecs []Codec
	byName map[string]Codec
}

func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{byName: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		c.Name = strings.ToUpper(c.Name)
		if _, dup := r.byName[c.Name]; dup {
			continue
		}
		r.codecs = append(r.codecs, c)
		r.byName[c.Name] = c
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(
		Codec{Name: "OPUS", Kind: KindAudio, PayloadType: 111, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1",
		}},
		Codec{Name: "PCMU", Kind: KindAudio, PayloadType: 0, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypePCMU, ClockRate: 8000,
		}},
		Codec{Name: "PCMA", Kind: KindAudio, PayloadType: 8, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypePCMA, ClockRate: 8000,
		}},
		Codec{Name: "VP8", Kind: KindVideo, PayloadType: 96, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP8, ClockRate: 90000,
		}},
		Codec{Name: "VP9", Kind: KindVideo, PayloadType: 98, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0",
		}},
		Codec{Name: "H264", Kind: KindVideo, PayloadType: 102, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeH264, ClockRate: 90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		}},
		Codec{Name: "AV1", Kind: KindVideo, PayloadType: 45, HasDecoder: true, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeAV1, ClockRate: 90000,
		}},
		Codec{Name: "H265", Kind: KindVideo, PayloadType: 49, Capability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeH265, ClockRate: 90000,
		}},
	)
})

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry() }

// List returns the codecs of kind in catalog order.
func (r *Registry) List(kind Kind) []Codec {
	out := make([]Codec, 0, len(r.codecs))
	for _, c := range r.codecs {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// All returns every codec in catalog order.
func (r *Registry) All() []Codec {
	out := make([]Codec, len(r.codecs))
	copy(out, r.codecs)
	return out
}

func (r *Registry) Find(name string) (Codec, bool) {
	c, ok := r.byName[strings.ToUpper(name)]
	return c, ok
}

func (r *Registry) Names(kind Kind) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range r.List(kind) {
		out[c.Name] = struct{}{}
	}
	return out
}

// Decodable returns the codecs of kind that have a local decoder.
func (r *Registry) Decodable(kind Kind) []Codec {
	var out []Codec
	for _, c := range r.List(kind) {
		if c.HasDecoder {
			out = append(out, c)
		}
	}
	return out
}

// Filter resolves names to codecs of kind. Unknown names, names of the other
// kind and duplicates are dropped.
func (r *Registry) Filter(kind Kind, names []string) []Codec {
	seen := make(map[string]struct{}, len(names))
	var out []Codec
	for _, n := range names {
		c, ok := r.Find(n)
		if !ok || c.Kind != kind {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ByMimeType finds a codec from a pion mime type such as "audio/opus".
func (r *Registry) ByMimeType(mime string) (Codec, bool) {
	for _, c := range r.codecs {
		if strings.EqualFold(c.Capability.MimeType, mime) {
			return c, true
		}
	}
	return Codec{}, false
}
