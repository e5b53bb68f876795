package core

import (
	"context"
	"time"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/flow"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type NodeKind string

const (
	NodeSource NodeKind = "source"
	NodeParse  NodeKind = "parse"
	NodeDecode NodeKind = "decode"
	NodeFilter NodeKind = "filter"
)

// Buffer is the unit moving through a branch. Packet is set for RTP input,
// Frame for assembled or decoded media.
type Buffer struct {
	Packet    *rtp.Packet
	Frame     []byte
	Duration  time.Duration
	Timestamp uint32
	// MimeType of the encoded media the buffer came from.
	MimeType string
	Decoded  bool
}

// NodeConfig carries the per-kind settings of CreateNode.
type NodeConfig struct {
	Name string
	// Track feeds a source node.
	Track RawTrack
	// Codec drives frame assembly of parse and decode nodes.
	Codec webrtc.RTPCodecParameters
	// Transform is applied by filter nodes. Returning false drops the buffer.
	Transform func(Buffer) (Buffer, bool)
}

type Node interface {
	Name() string
	Kind() NodeKind
	// OnOutput registers fn to run once, when the node emits its first buffer.
	// If the node already produced output fn runs immediately.
	OnOutput(fn func(Node))
}

// Endpoint is a public, externally named output of the graph.
type Endpoint interface {
	Name() string
	Kind() codec.Kind
	// StreamID is the track id the endpoint was exposed for.
	StreamID() string
	// SetTarget links the endpoint to the output of n. It can only be set once.
	SetTarget(n Node) error
	Target() Node
	// WaitLinked blocks until SetTarget succeeded or ctx is done.
	WaitLinked(ctx context.Context) error
	// OnFlow reports the downstream result of every delivered buffer.
	OnFlow(fn func(flow.State))
}

// Graph is the media-processing collaborator of the router.
type Graph interface {
	CreateNode(kind NodeKind, cfg NodeConfig) (Node, error)
	Link(src, dst Node) error
	Unlink(src, dst Node) error
	RemoveNode(n Node) error
	ExposeEndpoint(name string, kind codec.Kind, streamID string) (Endpoint, error)
	RemoveEndpoint(ep Endpoint) error
	// AcceptedCapability intersects what ep's consumer accepts with filter,
	// in the consumer's preference order.
	AcceptedCapability(ep Endpoint, filter caps.Set) caps.Set
}

// FilterRequester is asked once per routed track whether a filter node should
// be inserted. A nil result means no filter.
type FilterRequester func(producerID, endpoint string, accepted caps.Set) Node
