package graph

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/flow"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanTrack struct {
	mime string
	ch   chan *rtp.Packet
}

func newChanTrack(mime string) *chanTrack {
	return &chanTrack{mime: mime, ch: make(chan *rtp.Packet, 16)}
}

func (t *chanTrack) ID() string       { return "raw-1" }
func (t *chanTrack) Mid() string      { return "0" }
func (t *chanTrack) Kind() codec.Kind { return codec.KindAudio }
func (t *chanTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: t.mime, ClockRate: 48000}}
}

func (t *chanTrack) ReadRTP() (*rtp.Packet, error) {
	p, ok := <-t.ch
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}

type collector struct {
	mu     sync.Mutex
	bufs   []core.Buffer
	state  flow.State
	closed bool
}

func (c *collector) Push(b core.Buffer) flow.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufs = append(c.bufs, b)
	return c.state
}

func (c *collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bufs)
}

func opusPacket(seq uint16, ts uint32) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: ts, SSRC: 1},
		Payload: []byte{0xfc, byte(seq)},
	}
}

func TestAcceptFor(t *testing.T) {
	raw, err := AcceptFor(AcceptRaw, codec.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, caps.RawVideo, raw)

	enc, err := AcceptFor(AcceptEncoded, codec.KindAudio)
	require.NoError(t, err)
	first, _ := enc.First()
	assert.Equal(t, caps.RTPName, first.Name)
	assert.Equal(t, "audio", first.Fields["media"])

	anyCaps, err := AcceptFor("", codec.KindAudio)
	require.NoError(t, err)
	assert.Equal(t, caps.Any, anyCaps)

	_, err = AcceptFor("bogus", codec.KindAudio)
	assert.ErrorIs(t, err, ErrUnknownAccept)
}

func TestAcceptedCapability(t *testing.T) {
	g := New(Config{Accept: map[codec.Kind]caps.Set{codec.KindAudio: caps.RawAudio}})
	defer g.Close()

	ep, err := g.ExposeEndpoint("audio_0", codec.KindAudio, "id:0")
	require.NoError(t, err)
	query := caps.Set{caps.NewStructure(caps.RTPName).With("encoding-name", "OPUS")}.Union(caps.RawAudio)
	got := g.AcceptedCapability(ep, query)
	first, ok := got.First()
	require.True(t, ok)
	assert.Equal(t, caps.RawAudioName, first.Name)

	vep, err := g.ExposeEndpoint("video_0", codec.KindVideo, "id:1")
	require.NoError(t, err)
	first, ok = g.AcceptedCapability(vep, query).First()
	require.True(t, ok)
	assert.Equal(t, caps.RTPName, first.Name)
}

func TestExposeEndpointTwice(t *testing.T) {
	g := New(Config{})
	defer g.Close()
	_, err := g.ExposeEndpoint("audio_0", codec.KindAudio, "a")
	require.NoError(t, err)
	_, err = g.ExposeEndpoint("audio_0", codec.KindAudio, "a")
	assert.ErrorIs(t, err, ErrEndpointExists)
}

func TestSourceToEndpoint(t *testing.T) {
	c := &collector{}
	g := New(Config{Consumer: func(string, codec.Kind) Consumer { return c }})
	defer g.Close()

	ep, err := g.ExposeEndpoint("audio_0", codec.KindAudio, "id:0")
	require.NoError(t, err)
	states := make(chan flow.State, 8)
	ep.OnFlow(func(s flow.State) { states <- s })

	track := newChanTrack(webrtc.MimeTypeOpus)
	src, err := g.CreateNode(core.NodeSource, core.NodeConfig{Name: "audio_0-source", Track: track})
	require.NoError(t, err)
	src.OnOutput(func(n core.Node) { assert.NoError(t, ep.SetTarget(n)) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	track.ch <- opusPacket(1, 0)
	require.NoError(t, ep.WaitLinked(ctx))
	select {
	case s := <-states:
		assert.Equal(t, flow.Ok, s)
	case <-ctx.Done():
		t.Fatal("no flow report")
	}
	assert.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)
	c.mu.Lock()
	assert.Equal(t, webrtc.MimeTypeOpus, c.bufs[0].MimeType)
	c.mu.Unlock()

	assert.ErrorIs(t, ep.SetTarget(src), ErrAlreadyLinked)
	close(track.ch)
}

func TestWaitLinkedHonoursContext(t *testing.T) {
	g := New(Config{})
	defer g.Close()
	ep, err := g.ExposeEndpoint("video_0", codec.KindVideo, "id:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ep.WaitLinked(ctx), context.DeadlineExceeded)
	assert.Nil(t, ep.Target())
}

func TestParseAssemblesFrames(t *testing.T) {
	g := New(Config{})
	defer g.Close()

	parse, err := g.CreateNode(core.NodeParse, core.NodeConfig{
		Codec: webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000}},
	})
	require.NoError(t, err)
	dec, err := g.CreateNode(core.NodeDecode, core.NodeConfig{
		Codec: webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000}},
	})
	require.NoError(t, err)
	require.NoError(t, g.Link(parse, dec))

	c := &collector{}
	ep := newEndpoint("audio_0", codec.KindAudio, "id", caps.RawAudio, c, nil)
	var decoded bool
	dec.OnOutput(func(n core.Node) {
		decoded = true
		require.NoError(t, ep.SetTarget(n))
	})

	pn := parse.(*node)
	for i := range 5 {
		pn.push(core.Buffer{Packet: opusPacket(uint16(10+i), uint32(i*960))})
	}

	assert.True(t, decoded)
	require.GreaterOrEqual(t, c.len(), 3)
	for _, b := range c.bufs {
		assert.True(t, b.Decoded)
		assert.Nil(t, b.Packet)
		assert.Equal(t, webrtc.MimeTypeOpus, b.MimeType)
		assert.Len(t, b.Frame, 2)
	}
}

func TestParseRejectsUnknownCodec(t *testing.T) {
	g := New(Config{})
	defer g.Close()
	_, err := g.CreateNode(core.NodeParse, core.NodeConfig{
		Codec: webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH265}},
	})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestFilterTransform(t *testing.T) {
	g := New(Config{})
	defer g.Close()

	f, err := g.CreateNode(core.NodeFilter, core.NodeConfig{
		Transform: func(b core.Buffer) (core.Buffer, bool) {
			if b.Timestamp%2 == 1 {
				return b, false
			}
			b.Timestamp++
			return b, true
		},
	})
	require.NoError(t, err)

	c := &collector{}
	ep := newEndpoint("audio_0", codec.KindAudio, "id", caps.Any, c, nil)
	require.NoError(t, ep.SetTarget(f))

	fn := f.(*node)
	fn.push(core.Buffer{Timestamp: 1})
	fn.push(core.Buffer{Timestamp: 2})
	require.Equal(t, 1, c.len())
	assert.Equal(t, uint32(3), c.bufs[0].Timestamp)
}

func TestLinkUnknownNode(t *testing.T) {
	g := New(Config{})
	defer g.Close()
	other := New(Config{})
	defer other.Close()

	a, err := g.CreateNode(core.NodeFilter, core.NodeConfig{Name: "a"})
	require.NoError(t, err)
	b, err := other.CreateNode(core.NodeFilter, core.NodeConfig{Name: "b"})
	require.NoError(t, err)

	assert.ErrorIs(t, g.Link(a, b), ErrUnknownNode)

	_, err = g.CreateNode(core.NodeFilter, core.NodeConfig{Name: "a"})
	assert.ErrorIs(t, err, ErrNodeExists)

	_, err = g.CreateNode(core.NodeSource, core.NodeConfig{Name: "s"})
	assert.ErrorIs(t, err, ErrNoTrack)
}

func TestRemoveNodeStopsForwarding(t *testing.T) {
	g := New(Config{})
	defer g.Close()

	a, err := g.CreateNode(core.NodeFilter, core.NodeConfig{Name: "a"})
	require.NoError(t, err)
	b, err := g.CreateNode(core.NodeFilter, core.NodeConfig{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, g.Link(a, b))

	c := &collector{}
	ep := newEndpoint("audio_0", codec.KindAudio, "id", caps.Any, c, nil)
	require.NoError(t, ep.SetTarget(b))

	a.(*node).push(core.Buffer{Timestamp: 1})
	require.Equal(t, 1, c.len())

	require.NoError(t, g.RemoveNode(b))
	a.(*node).push(core.Buffer{Timestamp: 2})
	assert.Equal(t, 1, c.len())
	assert.ErrorIs(t, g.RemoveNode(b), ErrUnknownNode)
}

func TestRemoveEndpointClosesConsumer(t *testing.T) {
	c := &collector{}
	var bytes int
	g := New(Config{
		Consumer: func(string, codec.Kind) Consumer { return c },
		OnBytes:  func(n int) { bytes += n },
	})
	defer g.Close()

	f, err := g.CreateNode(core.NodeFilter, core.NodeConfig{Name: "f"})
	require.NoError(t, err)
	ep, err := g.ExposeEndpoint("audio_0", codec.KindAudio, "id")
	require.NoError(t, err)
	require.NoError(t, ep.SetTarget(f))

	f.(*node).push(core.Buffer{Frame: []byte{1, 2, 3}})
	assert.Equal(t, 3, bytes)

	require.NoError(t, g.RemoveEndpoint(ep))
	assert.True(t, c.closed)
	f.(*node).push(core.Buffer{Frame: []byte{1}})
	assert.Equal(t, 1, c.len())
	assert.ErrorIs(t, g.RemoveEndpoint(ep), ErrUnknownEndpoint)
}

func TestRecorder(t *testing.T) {
	dir := t.TempDir()

	r := NewRecorder(dir, "audio_0")
	for i := range 3 {
		st := r.Push(core.Buffer{Packet: opusPacket(uint16(i), uint32(i*960)), MimeType: webrtc.MimeTypeOpus})
		assert.Equal(t, flow.Ok, st)
	}
	require.NoError(t, r.Close())
	info, err := os.Stat(filepath.Join(dir, "audio_0.ogg"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, flow.Flushing, r.Push(core.Buffer{Frame: []byte{1}}))

	raw := NewRecorder(dir, "video_0")
	assert.Equal(t, flow.Ok, raw.Push(core.Buffer{Frame: []byte{1, 2}, Decoded: true}))
	require.NoError(t, raw.Close())
	data, err := os.ReadFile(filepath.Join(dir, "video_0.raw"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)

	g711 := NewRecorder(dir, "audio_1")
	assert.Equal(t, flow.NotNegotiated, g711.Push(core.Buffer{Packet: opusPacket(1, 0), MimeType: webrtc.MimeTypePCMU}))
	require.NoError(t, g711.Close())
}

func TestG711Depacketizer(t *testing.T) {
	d, err := depacketizerFor("audio/pcmu")
	require.NoError(t, err)
	out, err := d.Unmarshal([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.True(t, d.IsPartitionHead(nil))
	assert.True(t, d.IsPartitionTail(false, nil))

	_, err = d.Unmarshal(nil)
	assert.Error(t, err)
}
