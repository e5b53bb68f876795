package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MimeTypeRED = "video/red"

	PayloadTypeRED    webrtc.PayloadType = 116
	PayloadTypeULPFEC webrtc.PayloadType = 117

	pliInterval = 3 * time.Second
)

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: webrtc.TypeRTCPFBGoogREMB},
	{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
	{Type: webrtc.TypeRTCPFBNACK},
	{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
}

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// Factory creates peer connections that share one media and interceptor setup.
type Factory struct {
	api      *webrtc.API
	registry *codec.Registry
}

func NewFactory(reg *codec.Registry, logger zerolog.Logger) (*Factory, error) {
	m, err := newMediaEngine(reg)
	if err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.ConfigureNack(m, ir); err != nil {
		return nil, fmt.Errorf("configure nack: %w", err)
	}
	if err := webrtc.ConfigureRTCPReports(ir); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}
	if err := webrtc.ConfigureTWCCSender(m, ir); err != nil {
		return nil, fmt.Errorf("configure twcc: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(pliInterval))
	if err != nil {
		return nil, fmt.Errorf("pli interceptor: %w", err)
	}
	ir.Add(pli)

	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Logger: logger}}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithSettingEngine(se),
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
		),
		registry: reg,
	}, nil
}

func newMediaEngine(reg *codec.Registry) (*webrtc.MediaEngine, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range reg.All() {
		capability := c.Capability
		if c.Kind == codec.KindVideo {
			capability.RTCPFeedback = videoFeedback
		}
		params := webrtc.RTPCodecParameters{RTPCodecCapability: capability, PayloadType: c.PayloadType}
		if err := m.RegisterCodec(params, c.Kind.RTPCodecType()); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.Name, err)
		}
	}
	fec := []webrtc.RTPCodecParameters{
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: MimeTypeRED, ClockRate: 90000}, PayloadType: PayloadTypeRED},
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeUlpFEC, ClockRate: 90000}, PayloadType: PayloadTypeULPFEC},
	}
	for _, p := range fec {
		if err := m.RegisterCodec(p, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("register %s: %w", p.MimeType, err)
		}
	}
	return m, nil
}

// NewLeg creates a peer connection for role.
func (f *Factory) NewLeg(_ context.Context, role core.LegRole, ice []webrtc.ICEServer) (core.TransportLeg, error) {
	if len(ice) == 0 {
		ice = DefaultICEServers()
	}
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: ice})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	l := newLeg(pc, role, f.registry)
	log.Info().Str("module", "rtc").Str("role", string(role)).Int("ice_servers", len(ice)).Msg("leg created")
	return l, nil
}
