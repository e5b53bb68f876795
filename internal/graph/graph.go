// Package graph is the in-process media graph behind the router: source
// nodes pump RTP from raw tracks, parse and decode nodes assemble frames,
// endpoints hand buffers to consumers.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrUnknownNode      = errors.New("unknown node")
	ErrNodeExists       = errors.New("node already exists")
	ErrEndpointExists   = errors.New("endpoint already exists")
	ErrUnknownEndpoint  = errors.New("unknown endpoint")
	ErrAlreadyLinked    = errors.New("endpoint already linked")
	ErrNoTrack          = errors.New("source node needs a track")
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrUnknownAccept    = errors.New("unknown downstream mode")
	ErrClosed           = errors.New("graph closed")
)

// Downstream modes of an endpoint kind.
const (
	AcceptRaw     = "raw"
	AcceptEncoded = "encoded"
	AcceptAny     = "any"
)

// AcceptFor returns the capability consumed by endpoints of kind in mode.
func AcceptFor(mode string, kind codec.Kind) (caps.Set, error) {
	switch mode {
	case AcceptRaw:
		return kind.Raw(), nil
	case AcceptEncoded:
		return caps.Set{caps.NewStructure(caps.RTPName).With("media", string(kind))}, nil
	case AcceptAny, "":
		return caps.Any, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAccept, mode)
}

type Config struct {
	// Accept is the capability consumed per kind. Missing kinds accept anything.
	Accept map[codec.Kind]caps.Set
	// Decoder runs in decode nodes. Defaults to FrameDecoder.
	Decoder Decoder
	// Consumer builds the sink of a new endpoint. Defaults to Discard.
	Consumer func(name string, kind codec.Kind) Consumer
	// MaxLate is the reorder window of frame assembly, in packets.
	MaxLate uint16
	// OnBytes observes every payload delivered to an endpoint.
	OnBytes func(n int)
}

// Graph implements core.Graph.
type Graph struct {
	cfg Config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu        sync.Mutex
	closed    bool
	nodes     map[string]*node
	endpoints map[string]*endpoint
}

func New(cfg Config) *Graph {
	if cfg.Decoder == nil {
		cfg.Decoder = FrameDecoder{}
	}
	if cfg.Consumer == nil {
		cfg.Consumer = func(string, codec.Kind) Consumer { return Discard{} }
	}
	if cfg.MaxLate == 0 {
		cfg.MaxLate = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Graph{
		cfg:       cfg,
		log:       log.With().Str("module", "graph").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		nodes:     make(map[string]*node),
		endpoints: make(map[string]*endpoint),
	}
}

func (g *Graph) CreateNode(kind core.NodeKind, cfg core.NodeConfig) (core.Node, error) {
	if cfg.Name == "" {
		cfg.Name = string(kind) + "-" + uuid.NewString()
	}

	n := &node{name: cfg.Name, kind: kind, log: g.log.With().Str("node", cfg.Name).Logger()}
	switch kind {
	case core.NodeSource:
		if cfg.Track == nil {
			return nil, ErrNoTrack
		}
		mime := cfg.Track.Codec().MimeType
		n.process = func(b core.Buffer) []core.Buffer {
			b.MimeType = mime
			return []core.Buffer{b}
		}
	case core.NodeParse:
		asm, err := newAssembler(cfg.Codec, g.cfg.MaxLate)
		if err != nil {
			return nil, err
		}
		n.process = asm.process
	case core.NodeDecode:
		n.process = g.decodeStage(cfg.Codec)
	case core.NodeFilter:
		transform := cfg.Transform
		n.process = func(b core.Buffer) []core.Buffer {
			if transform == nil {
				return []core.Buffer{b}
			}
			out, ok := transform(b)
			if !ok {
				return nil
			}
			return []core.Buffer{out}
		}
	default:
		return nil, fmt.Errorf("node kind %q: %w", kind, ErrUnsupportedCodec)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := g.nodes[n.name]; dup {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, n.name)
	}
	g.nodes[n.name] = n
	if kind == core.NodeSource {
		ctx, cancel := context.WithCancel(g.ctx)
		n.stop = cancel
		track := cfg.Track
		g.wg.Go(func() { n.pump(ctx, track) })
	}
	g.mu.Unlock()

	g.log.Debug().Str("node", n.name).Str("kind", string(kind)).Msg("node created")
	return n, nil
}

func (g *Graph) decodeStage(c webrtc.RTPCodecParameters) func(core.Buffer) []core.Buffer {
	var asm *assembler
	dec := g.cfg.Decoder
	return func(b core.Buffer) []core.Buffer {
		in := []core.Buffer{b}
		if b.Packet != nil {
			if asm == nil {
				var err error
				if asm, err = newAssembler(c, g.cfg.MaxLate); err != nil {
					g.log.Error().Err(err).Str("codec", c.MimeType).Msg("decode input")
					return nil
				}
			}
			in = asm.process(b)
		}
		out := in[:0]
		for _, f := range in {
			d, err := dec.Decode(c.MimeType, f)
			if err != nil {
				g.log.Warn().Err(err).Str("codec", c.MimeType).Msg("decode")
				continue
			}
			out = append(out, d)
		}
		return out
	}
}

func (g *Graph) lookup(n core.Node) (*node, error) {
	gn, ok := n.(*node)
	if !ok || gn == nil {
		return nil, ErrUnknownNode
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nodes[gn.name] != gn {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, gn.name)
	}
	return gn, nil
}

func (g *Graph) Link(src, dst core.Node) error {
	s, err := g.lookup(src)
	if err != nil {
		return err
	}
	d, err := g.lookup(dst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.peers, d) {
		s.peers = append(s.peers, d)
	}
	return nil
}

func (g *Graph) Unlink(src, dst core.Node) error {
	s, err := g.lookup(src)
	if err != nil {
		return err
	}
	d, ok := dst.(*node)
	if !ok {
		return ErrUnknownNode
	}
	s.detach(d)
	return nil
}

// RemoveNode stops n and detaches it from its upstream nodes.
func (g *Graph) RemoveNode(n core.Node) error {
	gn, err := g.lookup(n)
	if err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.nodes, gn.name)
	others := make([]*node, 0, len(g.nodes))
	for _, o := range g.nodes {
		others = append(others, o)
	}
	g.mu.Unlock()

	gn.removed.Store(true)
	if gn.stop != nil {
		gn.stop()
	}
	for _, o := range others {
		o.detach(gn)
	}
	g.log.Debug().Str("node", gn.name).Msg("node removed")
	return nil
}

func (g *Graph) ExposeEndpoint(name string, kind codec.Kind, streamID string) (core.Endpoint, error) {
	accept, ok := g.cfg.Accept[kind]
	if !ok {
		accept = caps.Any
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	if _, dup := g.endpoints[name]; dup {
		return nil, fmt.Errorf("%w: %s", ErrEndpointExists, name)
	}
	ep := newEndpoint(name, kind, streamID, accept, g.cfg.Consumer(name, kind), g.cfg.OnBytes)
	g.endpoints[name] = ep
	g.log.Info().Str("endpoint", name).Str("stream_id", streamID).Str("accept", accept.String()).Msg("endpoint exposed")
	return ep, nil
}

func (g *Graph) RemoveEndpoint(ep core.Endpoint) error {
	g.mu.Lock()
	e, ok := g.endpoints[ep.Name()]
	ok = ok && core.Endpoint(e) == ep
	if ok {
		delete(g.endpoints, ep.Name())
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, ep.Name())
	}
	return e.close()
}

func (g *Graph) AcceptedCapability(ep core.Endpoint, filter caps.Set) caps.Set {
	e, ok := ep.(*endpoint)
	if !ok {
		return nil
	}
	return e.accept.Intersect(filter)
}

// Close stops every source and waits for their pumps to return. Endpoints
// are closed as well.
func (g *Graph) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	eps := make([]*endpoint, 0, len(g.endpoints))
	for _, e := range g.endpoints {
		eps = append(eps, e)
	}
	clear(g.endpoints)
	clear(g.nodes)
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	var result *multierror.Error
	for _, e := range eps {
		if err := e.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("endpoint %s: %w", e.name, err))
		}
	}
	return result.ErrorOrNil()
}
