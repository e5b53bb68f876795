// Package signal is the websocket signalling client of a subscriber session.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/rtcsub/internal/core"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrBackpressure   = errors.New("backpressure")
	ErrConnClosed     = errors.New("connection closed")
	ErrAlreadyStarted = errors.New("signaller already started")
	ErrNotStarted     = errors.New("signaller not started")
)

type Config struct {
	URL string
	// URI is the identity announced for track ids. Empty means none.
	URI        string
	PingPeriod time.Duration
	QueueSize  int
	// OfferLimit offers per OfferWindow are accepted per session id.
	OfferLimit  int
	OfferWindow time.Duration
	Dialer      *websocket.Dialer
}

// WsSignalConn is a websocket with a bounded send queue.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn, size int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, size)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

// Client implements core.Signaller over a websocket.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	limiter *RateLimiter

	mu            sync.RWMutex
	conn          *WsSignalConn
	cancel        context.CancelFunc
	onOffer       func(core.SessionID, webrtc.SessionDescription)
	onCandidate   func(core.RemoteCandidate)
	onError       func(error)
	onRequestMeta func() map[string]any
	// announce is resent on every Start.
	announce *consumerAddedMessage

	wg       conc.WaitGroup
	started  atomic.Bool
	stopping atomic.Bool
}

func New(cfg Config) *Client {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 20 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.OfferLimit <= 0 {
		cfg.OfferLimit = 5
	}
	if cfg.OfferWindow <= 0 {
		cfg.OfferWindow = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:     cfg,
		log:     log.With().Str("module", "signal").Logger(),
		limiter: NewRateLimiter(cfg.OfferLimit, cfg.OfferWindow),
	}
}

func (c *Client) URI() (string, bool) {
	return c.cfg.URI, c.cfg.URI != ""
}

func (c *Client) OnOffer(fn func(core.SessionID, webrtc.SessionDescription)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOffer = fn
}

func (c *Client) OnICECandidate(fn func(core.RemoteCandidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *Client) OnRequestMeta(fn func() map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRequestMeta = fn
}

// Start dials the signalling server and runs the pumps. A stopped client
// can be started again.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ws, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	conn := newConn(ws, c.cfg.QueueSize)
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	announce := c.announce
	c.mu.Unlock()
	c.stopping.Store(false)

	c.wg.Go(func() { c.writePump(ctx, conn) })
	c.wg.Go(func() { c.readPump(ctx, conn) })
	c.log.Info().Str("url", c.cfg.URL).Msg("signaller connected")

	if announce != nil {
		if err := c.sendJSON(conn, *announce); err != nil {
			c.log.Warn().Err(err).Str("peer_id", announce.PeerID).Msg("announce publisher")
		}
	}
	return nil
}

func (c *Client) Stop() {
	if !c.started.Load() {
		return
	}
	c.stopping.Store(true)
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.started.Store(false)
	c.log.Info().Msg("signaller stopped")
}

func (c *Client) current() (*WsSignalConn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, ErrNotStarted
	}
	return c.conn, nil
}

func (c *Client) fail(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
