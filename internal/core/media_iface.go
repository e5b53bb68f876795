package core

import (
	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=media_iface.go -destination=mock_transport_leg.go -package=core

type FECType int

const (
	FECNone FECType = iota
	FECUlpRed
)

// RecvOptions tune a receive-only transceiver.
type RecvOptions struct {
	Nack bool
	FEC  FECType
}

// AnswerReply is the completion of an asynchronous CreateAnswer.
// Exactly one of Answer and Err is expected to be set.
type AnswerReply struct {
	Answer *webrtc.SessionDescription
	Err    error
}

// TransportLeg is one peer connection owned by a session.
type TransportLeg interface {
	// AddRecvTransceiver binds a receive-only media line restricted to c.
	AddRecvTransceiver(kind codec.Kind, c caps.Set, opts RecvOptions) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// CreateAnswer completes on a transport goroutine.
	CreateAnswer(func(AnswerReply))
	SetLocalDescription(webrtc.SessionDescription) error
	AddICECandidate(mline uint32, candidate string) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(mline uint32, candidate string))
	// OnTrack sets a callback invoked when inbound media becomes available.
	OnTrack(func(RawTrack))
	OnDataChannel(func(*webrtc.DataChannel))
	Close() error
}

// RawTrack is inbound media owned by the transport engine.
type RawTrack interface {
	ID() string
	// Mid of the transceiver the track arrived on.
	Mid() string
	Kind() codec.Kind
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, error)
}
