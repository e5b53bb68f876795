package negotiate

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TransportCCURI is the only header extension kept by FilterCaps.
const TransportCCURI = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"

// ParseOffer validates the description type and parses its SDP.
func ParseOffer(offer webrtc.SessionDescription) (*sdp.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformedOffer, offer.Type.String())
	}
	var sd sdp.SessionDescription
	if err := sd.UnmarshalString(offer.SDP); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOffer, err)
	}
	return &sd, nil
}

// MediaCaps describes every payload type of md as an RTP structure carrying
// its rtpmap, fmtp parameters, rtcp-fb entries and the line's header extensions.
func MediaCaps(md *sdp.MediaDescription) caps.Set {
	one := sdp.SessionDescription{MediaDescriptions: []*sdp.MediaDescription{md}}

	extmaps := make(map[string]string)
	for _, a := range md.Attributes {
		if a.Key != sdp.AttrKeyExtMap {
			continue
		}
		var e sdp.ExtMap
		if err := e.Unmarshal(a.Key + ":" + a.Value); err != nil || e.URI == nil {
			continue
		}
		extmaps["extmap-"+strconv.Itoa(e.Value)] = e.URI.String()
	}

	var out caps.Set
	for _, format := range md.MediaName.Formats {
		pt, err := strconv.ParseUint(format, 10, 8)
		if err != nil {
			continue
		}
		c, err := one.GetCodecForPayloadType(uint8(pt))
		if err != nil {
			continue
		}

		s := caps.NewStructure(caps.RTPName)
		for _, kv := range strings.Split(c.Fmtp, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
			if ok && k != "" {
				s.Fields[k] = v
			}
		}
		for _, fb := range c.RTCPFeedback {
			s.Fields["rtcp-fb-"+strings.Join(strings.Fields(fb), "-")] = "true"
		}
		maps.Copy(s.Fields, extmaps)
		s.Fields["media"] = md.MediaName.Media
		s.Fields["payload"] = format
		s.Fields["encoding-name"] = strings.ToUpper(c.Name)
		s.Fields["clock-rate"] = strconv.FormatUint(uint64(c.ClockRate), 10)
		if c.EncodingParameters != "" {
			s.Fields["encoding-params"] = c.EncodingParameters
		}
		out = append(out, s)
	}
	return out
}

// FilterCaps keeps the structures whose encoding name is allowed. Fields
// prefixed "rtcp-" are dropped and, of the header extensions, only
// transport-wide-cc survives.
func FilterCaps(offered caps.Set, allowed map[string]struct{}) caps.Set {
	var out caps.Set
	for _, s := range offered {
		name, _ := s.Get("encoding-name")
		if _, ok := allowed[strings.ToUpper(name)]; !ok {
			continue
		}
		f := caps.NewStructure(caps.RTPName)
		for k, v := range s.Fields {
			switch {
			case strings.HasPrefix(k, "rtcp-"):
			case strings.HasPrefix(k, "extmap-"):
				if v == TransportCCURI {
					f.Fields[k] = v
				}
			default:
				f.Fields[k] = v
			}
		}
		out = append(out, f)
	}
	return out
}

// FilterLines runs FilterCaps over every media section of sd. Sections with
// no surviving payload are left out of the result.
func FilterLines(sd *sdp.SessionDescription, allowed map[string]struct{}, identity func(mline uint32) string) []core.TrackRequest {
	var lines []core.TrackRequest
	for i, md := range sd.MediaDescriptions {
		mline := uint32(i)
		filtered := FilterCaps(MediaCaps(md), allowed)
		if filtered.Empty() {
			log.Info().
				Str("module", "negotiate").
				Uint32("mline", mline).
				Str("media", md.MediaName.Media).
				Msg("media line dropped, no allowed codec")
			continue
		}
		mid, ok := md.Attribute(sdp.AttrKeyMID)
		if !ok {
			mid = strconv.Itoa(i)
		}
		payloads := make([]string, 0, len(filtered))
		for _, s := range filtered {
			pt, _ := s.Get("payload")
			payloads = append(payloads, pt)
		}
		lines = append(lines, core.TrackRequest{
			MLine:    mline,
			Mid:      mid,
			Media:    md.MediaName.Media,
			Caps:     filtered,
			Payloads: payloads,
			TrackID:  identity(mline),
		})
	}
	return lines
}

// FilterOffer rebuilds sd with only the given lines: other media sections
// are removed, dropped payload types lose their rtpmap, fmtp and rtcp-fb
// attributes, and the BUNDLE group is pruned to the remaining mids.
func FilterOffer(sd *sdp.SessionDescription, lines []core.TrackRequest) (string, error) {
	keep := make(map[uint32]core.TrackRequest, len(lines))
	for _, l := range lines {
		keep[l.MLine] = l
	}

	out := *sd
	out.MediaDescriptions = nil
	mids := make(map[string]struct{}, len(lines))
	for i, md := range sd.MediaDescriptions {
		l, ok := keep[uint32(i)]
		if !ok {
			continue
		}
		mids[l.Mid] = struct{}{}

		nm := *md
		nm.MediaName.Formats = slices.DeleteFunc(slices.Clone(md.MediaName.Formats), func(f string) bool {
			return !slices.Contains(l.Payloads, f)
		})
		nm.Attributes = slices.DeleteFunc(slices.Clone(md.Attributes), func(a sdp.Attribute) bool {
			switch a.Key {
			case "rtpmap", "fmtp", "rtcp-fb":
				pt, _, _ := strings.Cut(a.Value, " ")
				return pt != "*" && !slices.Contains(l.Payloads, pt)
			}
			return false
		})
		out.MediaDescriptions = append(out.MediaDescriptions, &nm)
	}

	out.Attributes = make([]sdp.Attribute, 0, len(sd.Attributes))
	for _, a := range sd.Attributes {
		if a.Key == sdp.AttrKeyGroup && strings.HasPrefix(a.Value, "BUNDLE") {
			fields := strings.Fields(a.Value)
			kept := fields[:1]
			for _, mid := range fields[1:] {
				if _, ok := mids[mid]; ok {
					kept = append(kept, mid)
				}
			}
			if len(kept) == 1 {
				continue
			}
			a = sdp.NewAttribute(sdp.AttrKeyGroup, strings.Join(kept, " "))
		}
		out.Attributes = append(out.Attributes, a)
	}

	b, err := out.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal filtered offer: %w", err)
	}
	return string(b), nil
}
