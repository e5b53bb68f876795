package rtc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrNoCodecs = errors.New("no registered codec in capability")
	ErrClosed   = errors.New("leg closed")
)

// Leg is a pion peer connection implementing core.TransportLeg.
type Leg struct {
	pc       *webrtc.PeerConnection
	role     core.LegRole
	registry *codec.Registry
	log      zerolog.Logger

	wg     conc.WaitGroup
	closed atomic.Bool

	mu            sync.RWMutex
	onICE         func(mline uint32, candidate string)
	onTrack       func(core.RawTrack)
	onDataChannel func(*webrtc.DataChannel)
}

func newLeg(pc *webrtc.PeerConnection, role core.LegRole, reg *codec.Registry) *Leg {
	l := &Leg{
		pc:       pc,
		role:     role,
		registry: reg,
		log:      log.With().Str("module", "rtc").Str("role", string(role)).Logger(),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		l.mu.RLock()
		fn := l.onICE
		l.mu.RUnlock()
		if fn == nil {
			return
		}
		init := cand.ToJSON()
		var mline uint32
		if init.SDPMLineIndex != nil {
			mline = uint32(*init.SDPMLineIndex)
		}
		fn(mline, init.Candidate)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		raw := &rawTrack{track: track, mid: l.midOf(receiver)}
		l.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("mid", raw.mid).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		l.mu.RLock()
		fn := l.onTrack
		l.mu.RUnlock()
		if fn != nil {
			fn(raw)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		l.log.Info().Str("label", dc.Label()).Msg("data channel")
		l.mu.RLock()
		fn := l.onDataChannel
		l.mu.RUnlock()
		if fn != nil {
			fn(dc)
		}
	})
	return l
}

func (l *Leg) midOf(receiver *webrtc.RTPReceiver) string {
	for _, tr := range l.pc.GetTransceivers() {
		if tr.Receiver() == receiver {
			return tr.Mid()
		}
	}
	return ""
}

// AddRecvTransceiver adds a receive-only transceiver whose codec
// preferences are the registered codecs named in c, in order.
func (l *Leg) AddRecvTransceiver(kind codec.Kind, c caps.Set, opts core.RecvOptions) error {
	prefs := l.preferences(kind, c, opts)
	if len(prefs) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCodecs, c)
	}
	tr, err := l.pc.AddTransceiverFromKind(kind.RTPCodecType(), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add transceiver: %w", err)
	}
	if err := tr.SetCodecPreferences(prefs); err != nil {
		return fmt.Errorf("codec preferences: %w", err)
	}
	l.log.Debug().Str("kind", string(kind)).Int("codecs", len(prefs)).Msg("recv transceiver added")
	return nil
}

func (l *Leg) preferences(kind codec.Kind, c caps.Set, opts core.RecvOptions) []webrtc.RTPCodecParameters {
	seen := make(map[string]struct{})
	var out []webrtc.RTPCodecParameters
	for _, s := range c {
		name, ok := s.Get("encoding-name")
		if !ok {
			continue
		}
		rc, ok := l.registry.Find(name)
		if !ok || rc.Kind != kind {
			continue
		}
		if _, dup := seen[rc.Name]; dup {
			continue
		}
		seen[rc.Name] = struct{}{}
		capability := rc.Capability
		if kind == codec.KindVideo {
			capability.RTCPFeedback = feedback(opts)
		}
		out = append(out, webrtc.RTPCodecParameters{RTPCodecCapability: capability, PayloadType: rc.PayloadType})
	}
	if len(out) > 0 && kind == codec.KindVideo && opts.FEC == core.FECUlpRed {
		out = append(out,
			webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: MimeTypeRED, ClockRate: 90000}, PayloadType: PayloadTypeRED},
			webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeUlpFEC, ClockRate: 90000}, PayloadType: PayloadTypeULPFEC},
		)
	}
	return out
}

func feedback(opts core.RecvOptions) []webrtc.RTCPFeedback {
	if opts.Nack {
		return videoFeedback
	}
	out := make([]webrtc.RTCPFeedback, 0, len(videoFeedback))
	for _, fb := range videoFeedback {
		if fb.Type != webrtc.TypeRTCPFBNACK {
			out = append(out, fb)
		}
	}
	return out
}

func (l *Leg) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(sd)
}

// CreateAnswer generates the answer on its own goroutine.
func (l *Leg) CreateAnswer(fn func(core.AnswerReply)) {
	if l.closed.Load() {
		fn(core.AnswerReply{Err: ErrClosed})
		return
	}
	l.wg.Go(func() {
		answer, err := l.pc.CreateAnswer(nil)
		if err != nil {
			fn(core.AnswerReply{Err: err})
			return
		}
		fn(core.AnswerReply{Answer: &answer})
	})
}

func (l *Leg) SetLocalDescription(sd webrtc.SessionDescription) error {
	return l.pc.SetLocalDescription(sd)
}

func (l *Leg) AddICECandidate(mline uint32, candidate string) error {
	idx := uint16(mline)
	return l.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate, SDPMLineIndex: &idx})
}

func (l *Leg) OnICECandidate(fn func(mline uint32, candidate string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onICE = fn
}

func (l *Leg) OnTrack(fn func(core.RawTrack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *Leg) OnDataChannel(fn func(*webrtc.DataChannel)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDataChannel = fn
}

// LocalDescription returns the current local description, if any.
func (l *Leg) LocalDescription() *webrtc.SessionDescription {
	return l.pc.LocalDescription()
}

func (l *Leg) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.pc.Close()
	l.wg.Wait()
	if err != nil {
		l.log.Error().Err(err).Msg("close error")
		return err
	}
	l.log.Info().Msg("closed")
	return nil
}

type rawTrack struct {
	track *webrtc.TrackRemote
	mid   string
}

func (t *rawTrack) ID() string { return t.track.ID() }
func (t *rawTrack) Mid() string { return t.mid }

func (t *rawTrack) Kind() codec.Kind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return codec.KindVideo
	}
	return codec.KindAudio
}

func (t *rawTrack) Codec() webrtc.RTPCodecParameters { return t.track.Codec() }

func (t *rawTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}
