package core

import "github.com/pion/webrtc/v4"

//go:generate mockgen -source=signal_iface.go -destination=mock_signaller.go -package=core

// SessionID identifies one offer/answer exchange on the signalling channel.
type SessionID string

// Frame is a raw signalling payload.
type Frame []byte

// LegRole names one of the two transport legs of a session.
type LegRole string

const (
	RolePublisher  LegRole = "publisher"
	RoleSubscriber LegRole = "subscriber"
)

// RemoteCandidate is a connectivity candidate received from the remote peer.
// An empty Target means the subscriber leg.
type RemoteCandidate struct {
	SessionID SessionID
	Target    LegRole
	MLine     uint32
	Candidate string
}

// Signaller abstracts the signalling transport.
// Handlers must be registered before Start.
type Signaller interface {
	Start() error
	Stop()
	SendAnswer(sid SessionID, answer webrtc.SessionDescription) error
	SendICE(sid SessionID, candidate string, mline uint32) error
	// AnnouncePublisher reports the local producer leg to the remote side.
	AnnouncePublisher(peerID string, leg TransportLeg)
	// URI is the identity source for track ids, when the signaller has one.
	URI() (string, bool)

	OnOffer(func(sid SessionID, offer webrtc.SessionDescription))
	OnICECandidate(func(RemoteCandidate))
	OnError(func(error))
	OnRequestMeta(func() map[string]any)
}
