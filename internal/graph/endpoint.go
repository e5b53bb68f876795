package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/flow"
)

type endpoint struct {
	name     string
	kind     codec.Kind
	streamID string
	accept   caps.Set
	consumer Consumer
	onBytes  func(int)

	linked  chan struct{}
	removed atomic.Bool

	mu     sync.Mutex
	target *node
	onFlow func(flow.State)
}

func newEndpoint(name string, kind codec.Kind, streamID string, accept caps.Set, c Consumer, onBytes func(int)) *endpoint {
	return &endpoint{
		name:     name,
		kind:     kind,
		streamID: streamID,
		accept:   accept,
		consumer: c,
		onBytes:  onBytes,
		linked:   make(chan struct{}),
	}
}

func (e *endpoint) Name() string     { return e.name }
func (e *endpoint) Kind() codec.Kind { return e.kind }
func (e *endpoint) StreamID() string { return e.streamID }

func (e *endpoint) SetTarget(n core.Node) error {
	gn, ok := n.(*node)
	if !ok || gn == nil {
		return ErrUnknownNode
	}
	e.mu.Lock()
	if e.target != nil {
		e.mu.Unlock()
		return ErrAlreadyLinked
	}
	e.target = gn
	close(e.linked)
	e.mu.Unlock()

	gn.attach(e)
	return nil
}

func (e *endpoint) Target() core.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.target == nil {
		return nil
	}
	return e.target
}

func (e *endpoint) WaitLinked(ctx context.Context) error {
	select {
	case <-e.linked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *endpoint) OnFlow(fn func(flow.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFlow = fn
}

func (e *endpoint) deliver(b core.Buffer) {
	if e.removed.Load() {
		return
	}
	st := e.consumer.Push(b)
	if e.onBytes != nil {
		e.onBytes(payloadLen(b))
	}
	e.mu.Lock()
	fn := e.onFlow
	e.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (e *endpoint) close() error {
	if e.removed.Swap(true) {
		return nil
	}
	e.mu.Lock()
	target := e.target
	e.mu.Unlock()
	if target != nil {
		target.detachEndpoint(e)
	}
	return e.consumer.Close()
}

func payloadLen(b core.Buffer) int {
	if b.Frame != nil {
		return len(b.Frame)
	}
	if b.Packet != nil {
		return len(b.Packet.Payload)
	}
	return 0
}
