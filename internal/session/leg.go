package session

import (
	"sync"

	"github.com/dkeye/rtcsub/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const maxPendingCandidates = 128

type pendingCandidate struct {
	mline     uint32
	candidate string
}

// bufferedLeg holds remote candidates until the leg has a remote description.
type bufferedLeg struct {
	core.TransportLeg
	role core.LegRole
	log  zerolog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []pendingCandidate
}

func newBufferedLeg(leg core.TransportLeg, role core.LegRole, logger zerolog.Logger) *bufferedLeg {
	return &bufferedLeg{
		TransportLeg: leg,
		role:         role,
		log:          logger.With().Str("role", string(role)).Logger(),
	}
}

func (b *bufferedLeg) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if err := b.TransportLeg.SetRemoteDescription(sd); err != nil {
		return err
	}
	b.mu.Lock()
	b.remoteSet = true
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, p := range pending {
		if err := b.TransportLeg.AddICECandidate(p.mline, p.candidate); err != nil {
			b.log.Warn().Err(err).Uint32("mline", p.mline).Msg("buffered candidate rejected")
		}
	}
	if len(pending) > 0 {
		b.log.Debug().Int("candidates", len(pending)).Msg("buffered candidates flushed")
	}
	return nil
}

// addRemote applies a remote candidate, or buffers it while no remote
// description is set.
func (b *bufferedLeg) addRemote(mline uint32, candidate string) (buffered bool, err error) {
	b.mu.Lock()
	if !b.remoteSet {
		defer b.mu.Unlock()
		if len(b.pending) >= maxPendingCandidates {
			return false, errTooManyCandidates
		}
		b.pending = append(b.pending, pendingCandidate{mline: mline, candidate: candidate})
		return true, nil
	}
	b.mu.Unlock()
	return false, b.TransportLeg.AddICECandidate(mline, candidate)
}
