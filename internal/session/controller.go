// Package session owns the lifecycle of one subscriber session: its two
// transport legs, the negotiation engine and the track router.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/flow"
	"github.com/dkeye/rtcsub/internal/metric"
	"github.com/dkeye/rtcsub/internal/negotiate"
	"github.com/dkeye/rtcsub/internal/router"
	"github.com/dkeye/rtcsub/internal/streamid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrNotPrepared       = errors.New("session not prepared")
	ErrAlreadyPrepared   = errors.New("session already prepared")
	ErrAlreadyActive     = errors.New("session already active")
	errTooManyCandidates = errors.New("too many buffered candidates")
)

type State string

const (
	StateIdle     State = "idle"
	StatePrepared State = "prepared"
	StateActive   State = "active"
)

// LegFactory creates the transport legs of a session.
type LegFactory interface {
	NewLeg(ctx context.Context, role core.LegRole, ice []webrtc.ICEServer) (core.TransportLeg, error)
}

type Config struct {
	Signaller core.Signaller
	Legs      LegFactory
	Graph     core.Graph
	Registry  *codec.Registry
	// Filter is the optional filter extension point.
	Filter  core.FilterRequester
	Metrics *metric.Metrics
}

// Status is a snapshot for the status API.
type Status struct {
	State     State                 `json:"state"`
	SessionID core.SessionID        `json:"session_id,omitempty"`
	Round     string                `json:"negotiation,omitempty"`
	Flow      string                `json:"flow"`
	Endpoints []router.EndpointInfo `json:"endpoints"`
	Channels  []string              `json:"data_channels,omitempty"`
}

type Controller struct {
	cfg      Config
	log      zerolog.Logger
	identity string
	flows    *flow.Aggregator
	router   *router.Router
	errs     chan error
	wg       conc.WaitGroup

	settingsMu sync.RWMutex
	settings   settings

	mu         sync.Mutex
	state      State
	publisher  *bufferedLeg
	subscriber *bufferedLeg
	engine     *negotiate.Engine

	dcMu     sync.Mutex
	channels []*webrtc.DataChannel
}

// New binds the signaller events. The controller starts Idle with the
// default allow-lists and STUN server.
func New(cfg Config) *Controller {
	if cfg.Registry == nil {
		cfg.Registry = codec.Default()
	}
	c := &Controller{
		cfg:      cfg,
		log:      log.With().Str("module", "session").Logger(),
		identity: streamid.Source(cfg.Signaller.URI()),
		flows:    flow.NewAggregator(),
		errs:     make(chan error, 16),
		state:    StateIdle,
	}
	c.settings = settings{
		stun:  DefaultSTUN,
		audio: cfg.Registry.Decodable(codec.KindAudio),
		video: cfg.Registry.Decodable(codec.KindVideo),
		meta:  map[string]any{},
	}
	c.router = router.New(router.Config{
		Graph:      cfg.Graph,
		Flows:      c.flows,
		Identity:   c.identity,
		Filter:     cfg.Filter,
		ProducerID: c.ProducerID,
		Metrics:    cfg.Metrics,
	})

	cfg.Signaller.OnOffer(c.handleOffer)
	cfg.Signaller.OnICECandidate(c.handleRemoteCandidate)
	cfg.Signaller.OnError(func(err error) {
		c.log.Error().Err(err).Msg("signaller error")
		c.failed(fmt.Errorf("signaller: %w", err))
	})
	cfg.Signaller.OnRequestMeta(c.Meta)
	return c
}

// Errors delivers session failures. Each failure also tears the session down.
func (c *Controller) Errors() <-chan error { return c.errs }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Prepare creates both legs and the negotiation engine.
func (c *Controller) Prepare(ctx context.Context) error {
	ice := c.ICEServers()
	producerID := c.ProducerID()

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyPrepared
	}

	pub, err := c.cfg.Legs.NewLeg(ctx, core.RolePublisher, ice)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create publisher leg: %w", err)
	}
	sub, err := c.cfg.Legs.NewLeg(ctx, core.RoleSubscriber, ice)
	if err != nil {
		c.mu.Unlock()
		if cerr := pub.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("rollback publisher leg")
		}
		return fmt.Errorf("create subscriber leg: %w", err)
	}

	c.publisher = newBufferedLeg(pub, core.RolePublisher, c.log)
	c.subscriber = newBufferedLeg(sub, core.RoleSubscriber, c.log)
	for _, l := range []*bufferedLeg{c.publisher, c.subscriber} {
		role := l.role
		l.OnICECandidate(func(mline uint32, candidate string) {
			c.relayLocalCandidate(role, mline, candidate)
		})
		l.OnDataChannel(func(dc *webrtc.DataChannel) {
			c.captureDataChannel(role, dc)
		})
	}
	c.publisher.OnTrack(func(raw core.RawTrack) {
		c.log.Debug().Str("raw_track", raw.ID()).Msg("publisher track ignored")
	})
	c.subscriber.OnTrack(c.router.OnNewRawTrack)

	c.engine = negotiate.New(negotiate.Config{
		Leg:      c.subscriber,
		Answers:  c.cfg.Signaller,
		Tracks:   c.router,
		Allowed:  c.allowed,
		Identity: c.identity,
		OnFailure: func(err error) {
			c.cfg.Metrics.OfferResult(metric.OfferFailed)
			c.failed(err)
		},
		OnAnswered: func(sid core.SessionID, lines []core.TrackRequest) {
			c.cfg.Metrics.OfferResult(metric.OfferAnswered)
			c.log.Info().Str("sid", string(sid)).Int("lines", len(lines)).Msg("session answered")
		},
	})
	c.state = StatePrepared
	publisher := c.publisher
	c.mu.Unlock()

	c.cfg.Signaller.AnnouncePublisher(producerID, publisher)
	c.log.Info().Str("identity", c.identity).Int("ice_servers", len(ice)).Msg("session prepared")
	return nil
}

// Activate starts the signaller. It is valid once per Prepare.
func (c *Controller) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		return ErrNotPrepared
	case StateActive:
		return ErrAlreadyActive
	}
	if err := c.cfg.Signaller.Start(); err != nil {
		return fmt.Errorf("start signaller: %w", err)
	}
	c.state = StateActive
	c.log.Info().Msg("session active")
	return nil
}

// Teardown stops signalling, cancels negotiation, removes every endpoint and
// closes both legs. It always leaves the controller Idle.
func (c *Controller) Teardown() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	wasActive := c.state == StateActive
	engine := c.engine
	legs := []*bufferedLeg{c.publisher, c.subscriber}
	c.engine, c.publisher, c.subscriber = nil, nil, nil
	c.state = StateIdle
	c.mu.Unlock()

	if wasActive {
		c.cfg.Signaller.Stop()
	}
	engine.Cancel()
	c.router.Reset()
	c.flows.Reset()
	c.dcMu.Lock()
	c.channels = nil
	c.dcMu.Unlock()

	var result *multierror.Error
	for _, l := range legs {
		if err := l.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s leg: %w", l.role, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		c.log.Warn().Err(err).Msg("session torn down with errors")
		return err
	}
	c.log.Info().Msg("session torn down")
	return nil
}

// Restart tears the session down and brings it back to Active.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.Teardown(); err != nil {
		c.log.Warn().Err(err).Msg("restart teardown")
	}
	if err := c.Prepare(ctx); err != nil {
		return err
	}
	if err := c.Activate(); err != nil {
		_ = c.Teardown()
		return err
	}
	return nil
}

// Close tears down and waits for background teardowns.
func (c *Controller) Close() error {
	err := c.Teardown()
	c.wg.Wait()
	return err
}

// failed surfaces err and tears the session down off the calling goroutine.
func (c *Controller) failed(err error) {
	select {
	case c.errs <- err:
	default:
		c.log.Warn().Err(err).Msg("error sink full")
	}
	c.wg.Go(func() {
		if terr := c.Teardown(); terr != nil {
			c.log.Warn().Err(terr).Msg("teardown after failure")
		}
	})
}

func (c *Controller) handleOffer(sid core.SessionID, offer webrtc.SessionDescription) {
	c.mu.Lock()
	engine, state := c.engine, c.state
	c.mu.Unlock()
	if engine == nil || state != StateActive {
		c.log.Warn().Str("sid", string(sid)).Str("state", string(state)).Msg("offer without active session")
		return
	}

	err := engine.HandleOffer(sid, offer)
	switch {
	case err == nil:
	case errors.Is(err, negotiate.ErrBusy):
		c.cfg.Metrics.OfferResult(metric.OfferBusy)
	case errors.Is(err, negotiate.ErrCancelled):
		c.log.Debug().Str("sid", string(sid)).Msg("offer after cancel")
	}
}

func (c *Controller) handleRemoteCandidate(rc core.RemoteCandidate) {
	target := rc.Target
	if target == "" {
		target = core.RoleSubscriber
	}
	c.mu.Lock()
	leg := c.subscriber
	if target == core.RolePublisher {
		leg = c.publisher
	}
	c.mu.Unlock()

	logger := c.log.With().Str("sid", string(rc.SessionID)).Str("target", string(target)).Uint32("mline", rc.MLine).Logger()
	if leg == nil {
		logger.Warn().Msg("remote candidate dropped, no session")
		c.cfg.Metrics.RemoteCandidate(metric.CandidateDropped)
		return
	}
	buffered, err := leg.addRemote(rc.MLine, rc.Candidate)
	switch {
	case errors.Is(err, errTooManyCandidates):
		logger.Warn().Msg("remote candidate dropped, buffer full")
		c.cfg.Metrics.RemoteCandidate(metric.CandidateDropped)
	case err != nil:
		logger.Warn().Err(err).Msg("remote candidate rejected")
		c.cfg.Metrics.RemoteCandidate(metric.CandidateFailed)
	case buffered:
		logger.Debug().Msg("remote candidate buffered")
		c.cfg.Metrics.RemoteCandidate(metric.CandidateBuffered)
	default:
		c.cfg.Metrics.RemoteCandidate(metric.CandidateApplied)
	}
}

// sessionID is the id of the round the engine is negotiating or answered.
func (c *Controller) sessionID() core.SessionID {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return ""
	}
	return engine.SessionID()
}

func (c *Controller) relayLocalCandidate(role core.LegRole, mline uint32, candidate string) {
	sid := c.sessionID()
	if err := c.cfg.Signaller.SendICE(sid, candidate, mline); err != nil {
		c.log.Warn().Err(err).Str("role", string(role)).Msg("send local candidate")
	}
}

func (c *Controller) captureDataChannel(role core.LegRole, dc *webrtc.DataChannel) {
	c.log.Info().Str("role", string(role)).Str("label", dc.Label()).Msg("data channel captured")
	c.dcMu.Lock()
	defer c.dcMu.Unlock()
	c.channels = append(c.channels, dc)
}

// DataChannels returns the channels opened by the remote side on either leg.
func (c *Controller) DataChannels() []*webrtc.DataChannel {
	c.dcMu.Lock()
	defer c.dcMu.Unlock()
	out := make([]*webrtc.DataChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

// Flow returns the aggregate flow state of every branch.
func (c *Controller) Flow() flow.State { return c.flows.State() }

func (c *Controller) Endpoints() []router.EndpointInfo { return c.router.Endpoints() }

func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{State: c.state}
	if c.engine != nil {
		st.Round = c.engine.State()
		st.SessionID = c.engine.SessionID()
	}
	c.mu.Unlock()

	st.Flow = c.flows.State().String()
	st.Endpoints = c.router.Endpoints()
	for _, dc := range c.DataChannels() {
		st.Channels = append(st.Channels, dc.Label())
	}
	return st
}
