package router

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/flow"
	"github.com/dkeye/rtcsub/internal/streamid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	name string
	kind core.NodeKind

	mu       sync.Mutex
	produced bool
	fns      []func(core.Node)
}

func (n *fakeNode) Name() string        { return n.name }
func (n *fakeNode) Kind() core.NodeKind { return n.kind }

func (n *fakeNode) OnOutput(fn func(core.Node)) {
	n.mu.Lock()
	if n.produced {
		n.mu.Unlock()
		fn(n)
		return
	}
	n.fns = append(n.fns, fn)
	n.mu.Unlock()
}

func (n *fakeNode) emit() {
	n.mu.Lock()
	n.produced = true
	fns := n.fns
	n.fns = nil
	n.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

type fakeEndpoint struct {
	name     string
	kind     codec.Kind
	streamID string

	mu     sync.Mutex
	target core.Node
	onFlow func(flow.State)
}

func (e *fakeEndpoint) Name() string     { return e.name }
func (e *fakeEndpoint) Kind() codec.Kind { return e.kind }
func (e *fakeEndpoint) StreamID() string { return e.streamID }

func (e *fakeEndpoint) SetTarget(n core.Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.target != nil {
		return errors.New("already linked")
	}
	e.target = n
	return nil
}

func (e *fakeEndpoint) Target() core.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

func (e *fakeEndpoint) WaitLinked(context.Context) error { return nil }

func (e *fakeEndpoint) OnFlow(fn func(flow.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFlow = fn
}

func (e *fakeEndpoint) report(s flow.State) {
	e.mu.Lock()
	fn := e.onFlow
	e.mu.Unlock()
	fn(s)
}

type fakeGraph struct {
	mu               sync.Mutex
	accept           map[codec.Kind]caps.Set
	nodes            map[string]*fakeNode
	links            [][2]string
	endpoints        map[string]*fakeEndpoint
	removedNodes     []string
	removedEndpoints []string
	failCreate       core.NodeKind
	// onCreate runs before a node is created, without the graph lock.
	onCreate func(core.NodeKind)
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		accept:    map[codec.Kind]caps.Set{},
		nodes:     map[string]*fakeNode{},
		endpoints: map[string]*fakeEndpoint{},
	}
}

func (g *fakeGraph) CreateNode(kind core.NodeKind, cfg core.NodeConfig) (core.Node, error) {
	if g.onCreate != nil {
		g.onCreate(kind)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if kind == g.failCreate {
		return nil, io.ErrUnexpectedEOF
	}
	n := &fakeNode{name: cfg.Name, kind: kind}
	g.nodes[n.name] = n
	return n, nil
}

func (g *fakeGraph) Link(src, dst core.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links = append(g.links, [2]string{src.Name(), dst.Name()})
	return nil
}

func (g *fakeGraph) Unlink(core.Node, core.Node) error { return nil }

func (g *fakeGraph) RemoveNode(n core.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removedNodes = append(g.removedNodes, n.Name())
	delete(g.nodes, n.Name())
	return nil
}

func (g *fakeGraph) ExposeEndpoint(name string, kind codec.Kind, streamID string) (core.Endpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ep := &fakeEndpoint{name: name, kind: kind, streamID: streamID}
	g.endpoints[name] = ep
	return ep, nil
}

func (g *fakeGraph) RemoveEndpoint(ep core.Endpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removedEndpoints = append(g.removedEndpoints, ep.Name())
	delete(g.endpoints, ep.Name())
	return nil
}

func (g *fakeGraph) AcceptedCapability(ep core.Endpoint, filter caps.Set) caps.Set {
	g.mu.Lock()
	defer g.mu.Unlock()
	accept, ok := g.accept[ep.Kind()]
	if !ok {
		accept = caps.Any
	}
	return accept.Intersect(filter)
}

func (g *fakeGraph) node(name string) *fakeNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[name]
}

func (g *fakeGraph) endpoint(name string) *fakeEndpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endpoints[name]
}

type fakeRaw struct {
	id, mid string
	kind    codec.Kind
}

func (r fakeRaw) ID() string       { return r.id }
func (r fakeRaw) Mid() string      { return r.mid }
func (r fakeRaw) Kind() codec.Kind { return r.kind }
func (r fakeRaw) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}}
}
func (r fakeRaw) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

func opusCaps() caps.Set {
	return caps.Set{caps.NewStructure(caps.RTPName).With("encoding-name", "OPUS").With("media", "audio")}
}

func request(media, mid string, mline uint32) core.TrackRequest {
	return core.TrackRequest{
		MLine:   mline,
		Mid:     mid,
		Media:   media,
		Caps:    opusCaps(),
		TrackID: streamid.Derive(streamid.SessionPlaceholder, mline),
	}
}

func newRouter(g *fakeGraph, filter core.FilterRequester) (*Router, *flow.Aggregator) {
	flows := flow.NewAggregator()
	return New(Config{
		Graph:      g,
		Flows:      flows,
		Identity:   streamid.SessionPlaceholder,
		Filter:     filter,
		ProducerID: func() string { return "producer-1" },
	}), flows
}

func TestRequestTrackNamesEndpointsPerKind(t *testing.T) {
	g := newFakeGraph()
	r, _ := newRouter(g, nil)

	assert.True(t, r.RequestTrack(request("audio", "0", 0)))
	assert.True(t, r.RequestTrack(request("video", "1", 1)))
	assert.True(t, r.RequestTrack(request("audio", "2", 2)))
	assert.False(t, r.RequestTrack(request("application", "3", 3)))

	eps := r.Endpoints()
	require.Len(t, eps, 3)
	assert.Equal(t, "audio_0", eps[0].Name)
	assert.Equal(t, "audio_1", eps[1].Name)
	assert.Equal(t, 1, eps[1].Index)
	assert.Equal(t, "video_0", eps[2].Name)
	assert.Equal(t, streamid.Derive(streamid.SessionPlaceholder, 2), eps[1].TrackID)
	assert.Equal(t, eps[1].TrackID, g.endpoint("audio_1").StreamID())

	// same track id is reused
	assert.True(t, r.RequestTrack(request("audio", "0", 0)))
	assert.Len(t, r.Endpoints(), 3)
}

func TestNeedsDecodeIsWriteOnce(t *testing.T) {
	g := newFakeGraph()
	g.accept[codec.KindAudio] = caps.RawAudio
	r, _ := newRouter(g, nil)

	require.True(t, r.RequestTrack(request("audio", "0", 0)))
	assert.True(t, r.Endpoints()[0].NeedsDecode)

	g.mu.Lock()
	g.accept[codec.KindAudio] = caps.Set{caps.NewStructure(caps.RTPName)}
	g.mu.Unlock()
	require.True(t, r.RequestTrack(request("audio", "0", 0)))
	assert.True(t, r.Endpoints()[0].NeedsDecode)
}

func TestBranchShapes(t *testing.T) {
	tests := []struct {
		name   string
		accept caps.Set
		filter bool
		shape  Shape
		links  [][2]string
		out    string
	}{
		{
			name:  "passthrough",
			shape: ShapePassthrough,
			out:   "audio_0-source",
		},
		{
			name:   "filter",
			filter: true,
			shape:  ShapeFilter,
			links:  [][2]string{{"audio_0-source", "user-filter"}},
			out:    "user-filter",
		},
		{
			name:   "decode",
			accept: caps.RawAudio,
			shape:  ShapeDecode,
			links:  [][2]string{{"audio_0-source", "audio_0-decode"}},
			out:    "audio_0-decode",
		},
		{
			name:   "parse filter decode",
			accept: caps.RawAudio,
			filter: true,
			shape:  ShapeParseFilterDecode,
			links: [][2]string{
				{"audio_0-parse", "user-filter"},
				{"user-filter", "audio_0-decode"},
				{"audio_0-source", "audio_0-parse"},
			},
			out: "audio_0-decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGraph()
			if tt.accept != nil {
				g.accept[codec.KindAudio] = tt.accept
			}
			var calls int
			var gotProducer, gotEndpoint string
			var requester core.FilterRequester
			if tt.filter {
				requester = func(producer, endpoint string, accepted caps.Set) core.Node {
					calls++
					gotProducer, gotEndpoint = producer, endpoint
					n := &fakeNode{name: "user-filter", kind: core.NodeFilter}
					g.mu.Lock()
					g.nodes[n.name] = n
					g.mu.Unlock()
					return n
				}
			}
			r, _ := newRouter(g, requester)
			require.True(t, r.RequestTrack(request("audio", "0", 0)))

			r.OnNewRawTrack(fakeRaw{id: "raw", mid: "0", kind: codec.KindAudio})

			info := r.Endpoints()[0]
			assert.Equal(t, tt.shape, info.Shape)
			assert.True(t, info.Routed)
			assert.False(t, info.Linked)
			assert.Equal(t, tt.links, g.links)
			if tt.filter {
				assert.Equal(t, 1, calls)
				assert.Equal(t, "producer-1", gotProducer)
				assert.Equal(t, "audio_0", gotEndpoint)
			}

			// only the last node's first output links the endpoint
			if tt.out != "audio_0-source" {
				g.node("audio_0-source").emit()
				assert.Nil(t, g.endpoint("audio_0").Target())
			}
			g.node(tt.out).emit()
			require.NotNil(t, g.endpoint("audio_0").Target())
			assert.Equal(t, tt.out, g.endpoint("audio_0").Target().Name())
			assert.True(t, r.Endpoints()[0].Linked)
		})
	}
}

func TestSecondRawTrackIgnored(t *testing.T) {
	g := newFakeGraph()
	r, _ := newRouter(g, nil)
	require.True(t, r.RequestTrack(request("audio", "0", 0)))

	r.OnNewRawTrack(fakeRaw{id: "first", mid: "0", kind: codec.KindAudio})
	g.node("audio_0-source").emit()
	first := g.endpoint("audio_0").Target()
	require.NotNil(t, first)

	r.OnNewRawTrack(fakeRaw{id: "second", mid: "0", kind: codec.KindAudio})
	g.mu.Lock()
	assert.Len(t, g.nodes, 1)
	g.mu.Unlock()
	assert.Same(t, first, g.endpoint("audio_0").Target())
}

func TestUnsolicitedTrackIgnored(t *testing.T) {
	g := newFakeGraph()
	r, flows := newRouter(g, nil)
	require.True(t, r.RequestTrack(request("audio", "0", 0)))

	r.OnNewRawTrack(fakeRaw{id: "x", mid: "9", kind: codec.KindAudio})
	assert.Empty(t, g.nodes)
	assert.False(t, r.Endpoints()[0].Routed)
	assert.Equal(t, flow.Ok, flows.State())
}

func TestBranchFailureBecomesFlowError(t *testing.T) {
	g := newFakeGraph()
	g.accept[codec.KindAudio] = caps.RawAudio
	g.failCreate = core.NodeDecode
	r, flows := newRouter(g, nil)
	require.True(t, r.RequestTrack(request("audio", "0", 0)))

	r.OnNewRawTrack(fakeRaw{id: "raw", mid: "0", kind: codec.KindAudio})
	assert.Equal(t, flow.Error, flows.State())
	assert.Empty(t, g.nodes)
}

func TestEndpointFlowFeedsAggregator(t *testing.T) {
	g := newFakeGraph()
	r, flows := newRouter(g, nil)
	require.True(t, r.RequestTrack(request("audio", "0", 0)))
	require.True(t, r.RequestTrack(request("video", "1", 1)))
	r.OnNewRawTrack(fakeRaw{id: "a", mid: "0", kind: codec.KindAudio})
	r.OnNewRawTrack(fakeRaw{id: "v", mid: "1", kind: codec.KindVideo})

	g.endpoint("audio_0").report(flow.Ok)
	g.endpoint("video_0").report(flow.Error)
	assert.Equal(t, flow.Error, flows.State())
	g.endpoint("video_0").report(flow.Ok)
	assert.Equal(t, flow.Ok, flows.State())
}

func TestReset(t *testing.T) {
	g := newFakeGraph()
	r, flows := newRouter(g, nil)
	require.True(t, r.RequestTrack(request("audio", "0", 0)))
	r.OnNewRawTrack(fakeRaw{id: "a", mid: "0", kind: codec.KindAudio})
	ep := g.endpoint("audio_0")
	ep.report(flow.Error)

	r.Reset()
	assert.Empty(t, r.Endpoints())
	assert.Equal(t, []string{"audio_0"}, g.removedEndpoints)
	assert.Equal(t, []string{"audio_0-source"}, g.removedNodes)
	assert.Equal(t, flow.Ok, flows.State())

	// late reports from a removed endpoint are dropped
	ep.report(flow.Error)
	assert.Equal(t, flow.Ok, flows.State())

	// counters start over
	require.True(t, r.RequestTrack(request("audio", "5", 5)))
	assert.Equal(t, "audio_0", r.Endpoints()[0].Name)
}

func TestResetDuringConstructionLeavesNoBranch(t *testing.T) {
	for _, tc := range []struct {
		name       string
		failCreate core.NodeKind
	}{
		{name: "built", failCreate: ""},
		{name: "failed", failCreate: core.NodeDecode},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := newFakeGraph()
			g.accept[codec.KindAudio] = caps.RawAudio
			g.failCreate = tc.failCreate
			r, flows := newRouter(g, nil)
			require.True(t, r.RequestTrack(request("audio", "0", 0)))

			var once sync.Once
			g.onCreate = func(core.NodeKind) { once.Do(r.Reset) }
			r.OnNewRawTrack(fakeRaw{id: "a", mid: "0", kind: codec.KindAudio})

			assert.Zero(t, flows.Len())
			assert.Equal(t, flow.Ok, flows.State())
			assert.Empty(t, r.Endpoints())
			assert.Empty(t, g.nodes)
		})
	}
}
