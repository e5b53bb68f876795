package core

import "github.com/dkeye/rtcsub/internal/caps"

// TrackRequest is emitted once per accepted media line of an offer.
type TrackRequest struct {
	MLine uint32
	Mid   string
	// Media is the SDP media name of the line, e.g. "audio".
	Media    string
	Caps     caps.Set
	Payloads []string
	TrackID  string
}
