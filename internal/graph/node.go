package graph

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtcsub/internal/core"
	"github.com/rs/zerolog"
)

type node struct {
	name    string
	kind    core.NodeKind
	log     zerolog.Logger
	process func(core.Buffer) []core.Buffer
	stop    context.CancelFunc

	removed atomic.Bool

	mu        sync.Mutex
	produced  bool
	onOutput  []func(core.Node)
	peers     []*node
	endpoints []*endpoint
}

func (n *node) Name() string        { return n.name }
func (n *node) Kind() core.NodeKind { return n.kind }

func (n *node) OnOutput(fn func(core.Node)) {
	n.mu.Lock()
	if n.produced {
		n.mu.Unlock()
		fn(n)
		return
	}
	n.onOutput = append(n.onOutput, fn)
	n.mu.Unlock()
}

// pump reads the track until it fails or ctx is done.
func (n *node) pump(ctx context.Context, track core.RawTrack) {
	n.log.Info().Str("raw_track", track.ID()).Msg("source started")
	for {
		select {
		case <-ctx.Done():
			n.log.Info().Msg("source stopped")
			return
		default:
		}
		pkt, err := track.ReadRTP()
		if err != nil {
			n.log.Info().Err(err).Msg("source read ended")
			return
		}
		n.push(core.Buffer{Packet: pkt, Timestamp: pkt.Timestamp})
	}
}

func (n *node) push(b core.Buffer) {
	if n.removed.Load() {
		return
	}
	for _, out := range n.process(b) {
		n.emit(out)
	}
}

// emit runs the first-output callbacks before forwarding, so an endpoint
// linked by a callback already receives the first buffer.
func (n *node) emit(b core.Buffer) {
	n.mu.Lock()
	var first []func(core.Node)
	if !n.produced {
		n.produced = true
		first = n.onOutput
		n.onOutput = nil
	}
	n.mu.Unlock()
	for _, fn := range first {
		fn(n)
	}

	n.mu.Lock()
	peers := slices.Clone(n.peers)
	eps := slices.Clone(n.endpoints)
	n.mu.Unlock()

	for _, p := range peers {
		p.push(b)
	}
	for _, e := range eps {
		e.deliver(b)
	}
}

func (n *node) attach(e *endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints = append(n.endpoints, e)
}

func (n *node) detachEndpoint(e *endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints = slices.DeleteFunc(n.endpoints, func(o *endpoint) bool { return o == e })
}

func (n *node) detach(d *node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers = slices.DeleteFunc(n.peers, func(o *node) bool { return o == d })
}
