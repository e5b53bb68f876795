// Package router maps raw transport tracks to public track endpoints and
// builds the branch feeding each endpoint.
package router

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/flow"
	"github.com/dkeye/rtcsub/internal/metric"
	"github.com/dkeye/rtcsub/internal/streamid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Shape is the topology of a branch.
type Shape string

const (
	ShapePassthrough       Shape = "passthrough"
	ShapeFilter            Shape = "filter"
	ShapeDecode            Shape = "decode"
	ShapeParseFilterDecode Shape = "parse_filter_decode"
)

func selectShape(needsDecode, filtered bool) Shape {
	switch {
	case needsDecode && filtered:
		return ShapeParseFilterDecode
	case needsDecode:
		return ShapeDecode
	case filtered:
		return ShapeFilter
	}
	return ShapePassthrough
}

// EndpointInfo is a read-only view of an endpoint for status APIs.
type EndpointInfo struct {
	Name        string     `json:"name"`
	TrackID     string     `json:"track_id"`
	Kind        codec.Kind `json:"kind"`
	Index       int        `json:"index"`
	NeedsDecode bool       `json:"needs_decode"`
	Routed      bool       `json:"routed"`
	Linked      bool       `json:"linked"`
	Shape       Shape      `json:"shape,omitempty"`
	Caps        string     `json:"caps"`
}

type endpoint struct {
	name    string
	trackID string
	kind    codec.Kind
	index   int
	ep      core.Endpoint
	caps    caps.Set

	decided     atomic.Bool
	needsDecode atomic.Bool
	linked      atomic.Bool
	removed     atomic.Bool

	// guarded by Router.mu
	routed bool
	shape  Shape
	nodes  []core.Node
}

// setNeedsDecode applies v on the first call only and reports whether it did.
func (e *endpoint) setNeedsDecode(v bool) bool {
	if !e.decided.CompareAndSwap(false, true) {
		return false
	}
	e.needsDecode.Store(v)
	return true
}

type Config struct {
	Graph core.Graph
	Flows *flow.Aggregator
	// Identity is the stream identity source shared with the negotiation engine.
	Identity string
	// Filter is the optional filter extension point.
	Filter core.FilterRequester
	// ProducerID returns the producer peer id handed to Filter.
	ProducerID func() string
	Metrics    *metric.Metrics
}

type Router struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	byTrack  map[string]*endpoint
	byMid    map[string]uint32
	counters map[codec.Kind]int
}

func New(cfg Config) *Router {
	if cfg.ProducerID == nil {
		cfg.ProducerID = func() string { return "" }
	}
	return &Router{
		cfg:      cfg,
		log:      log.With().Str("module", "router").Logger(),
		byTrack:  make(map[string]*endpoint),
		byMid:    make(map[string]uint32),
		counters: make(map[codec.Kind]int),
	}
}

// RequestTrack looks up or creates the endpoint of an accepted line. Only
// audio and video lines are routable.
func (r *Router) RequestTrack(req core.TrackRequest) bool {
	kind, ok := codec.KindOf(req.Media)
	if !ok {
		r.log.Info().Str("media", req.Media).Uint32("mline", req.MLine).Msg("not an audio or video line")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byMid[req.Mid] = req.MLine
	query := req.Caps.Union(kind.Raw())

	if e, ok := r.byTrack[req.TrackID]; ok {
		r.refreshTargetLocked(e, query)
		r.log.Debug().Str("endpoint", e.name).Str("track_id", req.TrackID).Msg("endpoint reused")
		return true
	}

	idx := r.counters[kind]
	name := fmt.Sprintf("%s_%d", kind, idx)
	gep, err := r.cfg.Graph.ExposeEndpoint(name, kind, req.TrackID)
	if err != nil {
		r.log.Error().Err(err).Str("endpoint", name).Msg("expose endpoint")
		return false
	}
	r.counters[kind] = idx + 1

	e := &endpoint{
		name:    name,
		trackID: req.TrackID,
		kind:    kind,
		index:   idx,
		ep:      gep,
	}
	r.refreshTargetLocked(e, query)
	r.byTrack[req.TrackID] = e
	r.cfg.Metrics.SetEndpoints(len(r.byTrack))

	r.log.Info().
		Str("endpoint", name).
		Str("track_id", req.TrackID).
		Uint32("mline", req.MLine).
		Bool("needs_decode", e.needsDecode.Load()).
		Msg("endpoint exposed")
	return true
}

// refreshTargetLocked refreshes the target capability. needs-decode is only set by
// the first query.
func (r *Router) refreshTargetLocked(e *endpoint, query caps.Set) {
	accepted := r.cfg.Graph.AcceptedCapability(e.ep, query)
	e.caps = accepted
	first, ok := accepted.First()
	raw := ok && first.Name != caps.RTPName && first.Name != caps.AnyName
	if !e.setNeedsDecode(raw) && raw != e.needsDecode.Load() {
		r.log.Debug().Str("endpoint", e.name).Msg("needs-decode already set, query ignored")
	}
}

// OnNewRawTrack routes raw to the endpoint requested for its media line.
// Unknown and already routed tracks are ignored.
func (r *Router) OnNewRawTrack(raw core.RawTrack) {
	r.mu.Lock()
	mline, ok := r.byMid[raw.Mid()]
	if !ok {
		r.mu.Unlock()
		r.log.Warn().Str("mid", raw.Mid()).Str("raw_track", raw.ID()).Msg("unsolicited track ignored")
		return
	}
	trackID := streamid.Derive(r.cfg.Identity, mline)
	e, ok := r.byTrack[trackID]
	if !ok {
		r.mu.Unlock()
		r.log.Warn().Str("track_id", trackID).Uint32("mline", mline).Msg("no endpoint for track")
		return
	}
	if e.routed {
		r.mu.Unlock()
		r.log.Debug().Str("endpoint", e.name).Str("raw_track", raw.ID()).Msg("endpoint already routed")
		return
	}
	e.routed = true
	target := e.caps
	r.mu.Unlock()

	r.build(e, raw, target)
}

func (r *Router) build(e *endpoint, raw core.RawTrack, target caps.Set) {
	logger := r.log.With().Str("endpoint", e.name).Str("track_id", e.trackID).Logger()
	g := r.cfg.Graph

	accepted := g.AcceptedCapability(e.ep, target.Union(e.kind.Raw()))
	var filter core.Node
	if r.cfg.Filter != nil {
		filter = r.cfg.Filter(r.cfg.ProducerID(), e.name, accepted)
	}
	shape := selectShape(e.needsDecode.Load(), filter != nil)

	var nodes []core.Node
	if filter != nil {
		nodes = append(nodes, filter)
	}
	out, err := r.chain(e, raw, shape, filter, &nodes)
	if err != nil {
		logger.Error().Err(err).Str("shape", string(shape)).Msg("branch construction failed")
		for _, n := range nodes {
			_ = g.RemoveNode(n)
		}
		r.mu.Lock()
		if r.byTrack[e.trackID] == e {
			r.cfg.Flows.Update(e.name, flow.Error)
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if r.byTrack[e.trackID] != e {
		r.mu.Unlock()
		logger.Info().Msg("endpoint removed during construction")
		for _, n := range nodes {
			_ = g.RemoveNode(n)
		}
		return
	}
	e.shape = shape
	e.nodes = nodes
	// Reset clears the aggregator after taking mu, so the entry cannot outlive it.
	r.cfg.Flows.Add(e.name)
	r.mu.Unlock()

	e.ep.OnFlow(func(s flow.State) {
		if e.removed.Load() {
			return
		}
		r.cfg.Metrics.SetFlowState(int(r.cfg.Flows.Update(e.name, s)))
	})
	out.OnOutput(func(n core.Node) {
		if err := e.ep.SetTarget(n); err != nil {
			logger.Error().Err(err).Str("node", n.Name()).Msg("link endpoint")
			r.cfg.Flows.Update(e.name, flow.Error)
			return
		}
		e.linked.Store(true)
		logger.Info().Str("node", n.Name()).Msg("endpoint linked")
	})

	r.cfg.Metrics.TrackRouted(string(shape))
	logger.Info().Str("shape", string(shape)).Str("codec", raw.Codec().MimeType).Msg("branch built")
}

// chain creates the nodes of shape and links them. The source is created
// last so it starts pumping into a complete chain.
func (r *Router) chain(e *endpoint, raw core.RawTrack, shape Shape, filter core.Node, nodes *[]core.Node) (core.Node, error) {
	g := r.cfg.Graph
	create := func(kind core.NodeKind) (core.Node, error) {
		n, err := g.CreateNode(kind, core.NodeConfig{
			Name:  e.name + "-" + string(kind),
			Track: raw,
			Codec: raw.Codec(),
		})
		if err != nil {
			return nil, fmt.Errorf("create %s node: %w", kind, err)
		}
		*nodes = append(*nodes, n)
		return n, nil
	}
	link := func(src, dst core.Node) error {
		if err := g.Link(src, dst); err != nil {
			return fmt.Errorf("link %s to %s: %w", src.Name(), dst.Name(), err)
		}
		return nil
	}

	var head, out core.Node
	switch shape {
	case ShapeFilter:
		head, out = filter, filter
	case ShapeDecode:
		dec, err := create(core.NodeDecode)
		if err != nil {
			return nil, err
		}
		head, out = dec, dec
	case ShapeParseFilterDecode:
		parse, err := create(core.NodeParse)
		if err != nil {
			return nil, err
		}
		dec, err := create(core.NodeDecode)
		if err != nil {
			return nil, err
		}
		if err := link(parse, filter); err != nil {
			return nil, err
		}
		if err := link(filter, dec); err != nil {
			return nil, err
		}
		head, out = parse, dec
	}

	src, err := create(core.NodeSource)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return src, nil
	}
	if err := link(src, head); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset removes every endpoint and branch and zeroes the per-kind counters.
func (r *Router) Reset() {
	type branch struct {
		e     *endpoint
		nodes []core.Node
	}
	r.mu.Lock()
	eps := make([]branch, 0, len(r.byTrack))
	for _, e := range r.byTrack {
		eps = append(eps, branch{e: e, nodes: e.nodes})
	}
	clear(r.byTrack)
	clear(r.byMid)
	clear(r.counters)
	r.mu.Unlock()

	for _, b := range eps {
		e := b.e
		e.removed.Store(true)
		for _, n := range b.nodes {
			if err := r.cfg.Graph.RemoveNode(n); err != nil {
				r.log.Debug().Err(err).Str("node", n.Name()).Msg("remove node")
			}
		}
		if err := r.cfg.Graph.RemoveEndpoint(e.ep); err != nil {
			r.log.Warn().Err(err).Str("endpoint", e.name).Msg("remove endpoint")
		}
	}
	r.cfg.Flows.Reset()
	r.cfg.Metrics.SetEndpoints(0)
	r.cfg.Metrics.SetFlowState(int(flow.Ok))
	if len(eps) > 0 {
		r.log.Info().Int("endpoints", len(eps)).Msg("router reset")
	}
}

// Endpoints returns a snapshot sorted by name.
func (r *Router) Endpoints() []EndpointInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EndpointInfo, 0, len(r.byTrack))
	for _, e := range r.byTrack {
		out = append(out, EndpointInfo{
			Name:        e.name,
			TrackID:     e.trackID,
			Kind:        e.kind,
			Index:       e.index,
			NeedsDecode: e.needsDecode.Load(),
			Routed:      e.routed,
			Linked:      e.linked.Load(),
			Shape:       e.shape,
			Caps:        e.caps.String(),
		})
	}
	slices.SortFunc(out, func(a, b EndpointInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
