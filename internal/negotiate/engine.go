// Package negotiate drives one offer/answer round against the subscriber leg.
package negotiate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/streamid"
	"github.com/looplab/fsm"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBusy              = errors.New("negotiation in progress")
	ErrMalformedOffer    = errors.New("malformed offer")
	ErrNoAcceptableMedia = errors.New("no acceptable media in offer")
	ErrTransceiverSetup  = errors.New("transceiver setup failed")
	ErrAnswerFailed      = errors.New("answer generation failed")
	ErrCancelled         = errors.New("negotiation cancelled")
)

const (
	StateAwaitingOffer    = "awaiting_offer"
	StateFiltering        = "filtering"
	StateTransceiverSetup = "transceiver_setup"
	StateAnswerPending    = "answer_pending"
	StateAnswered         = "answered"
	StateFailed           = "failed"
	StateCancelled        = "cancelled"
)

const (
	evOffer    = "offer"
	evFiltered = "filtered"
	evReady    = "ready"
	evAnswer   = "answer"
	evFail     = "fail"
	evCancel   = "cancel"
)

// AnswerSender transmits the local answer.
type AnswerSender interface {
	SendAnswer(sid core.SessionID, answer webrtc.SessionDescription) error
}

// TrackRequester creates or looks up the endpoint of an accepted line.
// A false reply skips the line.
type TrackRequester interface {
	RequestTrack(req core.TrackRequest) bool
}

type Config struct {
	Leg     core.TransportLeg
	Answers AnswerSender
	Tracks  TrackRequester
	// Allowed returns the upper-case encoding names accepted for this round.
	Allowed func() map[string]struct{}
	// Identity is the stream identity source, see streamid.Source.
	Identity string

	OnFailure  func(error)
	OnAnswered func(sid core.SessionID, lines []core.TrackRequest)
}

// Engine negotiates one offer at a time. A second offer while a round is in
// flight is rejected with ErrBusy.
type Engine struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	fsm       *fsm.FSM
	round     uint64
	sid       core.SessionID
	lines     []core.TrackRequest
	cancelled bool
	// bound holds the mids that already have a receive transceiver.
	bound map[string]struct{}

	active atomic.Value // core.SessionID
}

func New(cfg Config) *Engine {
	e := &Engine{
		cfg:   cfg,
		log:   log.With().Str("module", "negotiate").Logger(),
		bound: make(map[string]struct{}),
	}
	e.fsm = fsm.NewFSM(
		StateAwaitingOffer,
		fsm.Events{
			{Name: evOffer, Src: []string{StateAwaitingOffer, StateAnswered, StateFailed}, Dst: StateFiltering},
			{Name: evFiltered, Src: []string{StateFiltering}, Dst: StateTransceiverSetup},
			{Name: evReady, Src: []string{StateTransceiverSetup}, Dst: StateAnswerPending},
			{Name: evAnswer, Src: []string{StateAnswerPending}, Dst: StateAnswered},
			{Name: evFail, Src: []string{StateAwaitingOffer, StateFiltering, StateTransceiverSetup, StateAnswerPending}, Dst: StateFailed},
			{Name: evCancel, Src: []string{
				StateAwaitingOffer, StateFiltering, StateTransceiverSetup,
				StateAnswerPending, StateAnswered, StateFailed,
			}, Dst: StateCancelled},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				e.log.Debug().Str("from", ev.Src).Str("to", ev.Dst).Msg("state change")
			},
		},
	)
	return e
}

// State returns the current round state.
func (e *Engine) State() string {
	return e.fsm.Current()
}

// SessionID returns the session id of the latest round that was not
// rejected as busy. It does not take the engine lock.
func (e *Engine) SessionID() core.SessionID {
	sid, _ := e.active.Load().(core.SessionID)
	return sid
}

// Lines returns the lines accepted by the last round that got past filtering.
func (e *Engine) Lines() []core.TrackRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.TrackRequest, len(e.lines))
	copy(out, e.lines)
	return out
}

// HandleOffer runs filtering, transceiver setup and the remote description
// synchronously, then requests the answer. The answer completes on a
// transport goroutine. Every returned error except ErrBusy and ErrCancelled
// is also reported through OnFailure.
func (e *Engine) HandleOffer(sid core.SessionID, offer webrtc.SessionDescription) error {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return ErrCancelled
	}
	switch state := e.fsm.Current(); state {
	case StateFiltering, StateTransceiverSetup, StateAnswerPending:
		e.mu.Unlock()
		e.log.Warn().Str("session_id", string(sid)).Str("state", state).Msg("offer rejected")
		return ErrBusy
	}

	e.round++
	gen := e.round
	e.sid = sid
	e.active.Store(sid)
	e.event(evOffer)

	if err := e.prepareLocked(offer); err != nil {
		e.event(evFail)
		e.mu.Unlock()
		e.fail(err)
		return err
	}
	e.mu.Unlock()

	e.cfg.Leg.CreateAnswer(func(r core.AnswerReply) {
		e.onAnswer(gen, r)
	})
	return nil
}

func (e *Engine) prepareLocked(offer webrtc.SessionDescription) error {
	sd, err := ParseOffer(offer)
	if err != nil {
		return err
	}

	identity := func(mline uint32) string { return streamid.Derive(e.cfg.Identity, mline) }
	lines := FilterLines(sd, e.cfg.Allowed(), identity)
	if len(lines) == 0 {
		return ErrNoAcceptableMedia
	}
	e.event(evFiltered)

	accepted := make([]core.TrackRequest, 0, len(lines))
	for _, l := range lines {
		if !e.cfg.Tracks.RequestTrack(l) {
			e.log.Info().Uint32("mline", l.MLine).Str("media", l.Media).Msg("line skipped by router")
			continue
		}
		if _, ok := e.bound[l.Mid]; ok && l.Mid != "" {
			e.log.Debug().Uint32("mline", l.MLine).Str("mid", l.Mid).Msg("receive transceiver reused")
			accepted = append(accepted, l)
			continue
		}
		kind, _ := codec.KindOf(l.Media)
		opts := core.RecvOptions{Nack: true, FEC: core.FECUlpRed}
		if err := e.cfg.Leg.AddRecvTransceiver(kind, l.Caps, opts); err != nil {
			return fmt.Errorf("%w: mline %d: %w", ErrTransceiverSetup, l.MLine, err)
		}
		if l.Mid != "" {
			e.bound[l.Mid] = struct{}{}
		}
		e.log.Info().
			Uint32("mline", l.MLine).
			Str("track_id", l.TrackID).
			Str("caps", l.Caps.String()).
			Msg("receive transceiver added")
		accepted = append(accepted, l)
	}
	if len(accepted) == 0 {
		return ErrNoAcceptableMedia
	}
	e.lines = accepted

	filtered, err := FilterOffer(sd, accepted)
	if err != nil {
		return err
	}
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: filtered}
	if err := e.cfg.Leg.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	e.event(evReady)
	return nil
}

func (e *Engine) onAnswer(gen uint64, r core.AnswerReply) {
	e.mu.Lock()
	if e.cancelled || gen != e.round || e.fsm.Current() != StateAnswerPending {
		e.mu.Unlock()
		e.log.Debug().Uint64("round", gen).Msg("late answer ignored")
		return
	}

	err := e.answerLocked(r)
	if err != nil {
		e.event(evFail)
	} else {
		e.event(evAnswer)
	}
	sid := e.sid
	lines := make([]core.TrackRequest, len(e.lines))
	copy(lines, e.lines)
	e.mu.Unlock()

	if err != nil {
		e.fail(err)
		return
	}
	e.log.Info().Str("session_id", string(sid)).Int("lines", len(lines)).Msg("answer sent")
	if e.cfg.OnAnswered != nil {
		e.cfg.OnAnswered(sid, lines)
	}
}

func (e *Engine) answerLocked(r core.AnswerReply) error {
	if r.Err != nil {
		return fmt.Errorf("%w: %w", ErrAnswerFailed, r.Err)
	}
	if r.Answer == nil || r.Answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: reply carries no answer", ErrAnswerFailed)
	}
	if err := e.cfg.Leg.SetLocalDescription(*r.Answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := e.cfg.Answers.SendAnswer(e.sid, *r.Answer); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	return nil
}

// Cancel turns any pending or future answer callback into a no-op.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled {
		return
	}
	e.cancelled = true
	e.event(evCancel)
}

// event must be called with mu held.
func (e *Engine) event(name string) {
	if err := e.fsm.Event(context.Background(), name); err != nil {
		e.log.Debug().Err(err).Str("event", name).Msg("fsm event")
	}
}

func (e *Engine) fail(err error) {
	e.log.Error().Err(err).Msg("negotiation failed")
	if e.cfg.OnFailure != nil {
		e.cfg.OnFailure(err)
	}
}
