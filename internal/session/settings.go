package session

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/pion/webrtc/v4"
)

var ErrBadTURN = errors.New("bad turn server url")

const DefaultSTUN = "stun:stun.l.google.com:19302"

// settings is guarded by Controller.settingsMu.
type settings struct {
	stun       string
	turn       []webrtc.ICEServer
	audio      []codec.Codec
	video      []codec.Codec
	meta       map[string]any
	producerID string
}

// ParseTURN converts turn(s)://user:pass@host:port into an ICE server.
func ParseTURN(raw string) (webrtc.ICEServer, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return webrtc.ICEServer{}, fmt.Errorf("%w: %w", ErrBadTURN, err)
	}
	if u.Scheme != "turn" && u.Scheme != "turns" {
		return webrtc.ICEServer{}, fmt.Errorf("%w: scheme %q", ErrBadTURN, u.Scheme)
	}
	if u.Host == "" {
		return webrtc.ICEServer{}, fmt.Errorf("%w: missing host", ErrBadTURN)
	}
	s := webrtc.ICEServer{URLs: []string{u.Scheme + ":" + u.Host}}
	if q := u.RawQuery; q != "" {
		s.URLs[0] += "?" + q
	}
	if u.User != nil {
		s.Username = u.User.Username()
		s.Credential, _ = u.User.Password()
	}
	return s, nil
}

// SetICEServers replaces the STUN server and TURN list used by the next Prepare.
func (c *Controller) SetICEServers(stun string, turn []string) error {
	servers := make([]webrtc.ICEServer, 0, len(turn))
	for _, t := range turn {
		s, err := ParseTURN(t)
		if err != nil {
			return err
		}
		servers = append(servers, s)
	}
	if rest, ok := strings.CutPrefix(stun, "stun://"); ok {
		stun = "stun:" + rest
	} else if stun != "" && !strings.HasPrefix(stun, "stun:") && !strings.HasPrefix(stun, "stuns:") {
		stun = "stun:" + stun
	}
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.settings.stun = stun
	c.settings.turn = servers
	return nil
}

// ICEServers returns the STUN server followed by the TURN servers.
func (c *Controller) ICEServers() []webrtc.ICEServer {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	out := make([]webrtc.ICEServer, 0, len(c.settings.turn)+1)
	if c.settings.stun != "" {
		out = append(out, webrtc.ICEServer{URLs: []string{c.settings.stun}})
	}
	return append(out, c.settings.turn...)
}

// SetCodecs sets the allow-list of kind. Unknown names and names of the other
// kind are dropped; an empty list restores the codecs with a local decoder.
// It returns the accepted names.
func (c *Controller) SetCodecs(kind codec.Kind, names []string) []string {
	list := c.cfg.Registry.Filter(kind, names)
	if len(names) == 0 {
		list = c.cfg.Registry.Decodable(kind)
	}
	if len(list) < len(names) {
		c.log.Warn().Str("kind", string(kind)).Strs("requested", names).Msg("codecs dropped from allow-list")
	}

	c.settingsMu.Lock()
	if kind == codec.KindVideo {
		c.settings.video = list
	} else {
		c.settings.audio = list
	}
	c.settingsMu.Unlock()

	out := make([]string, 0, len(list))
	for _, cd := range list {
		out = append(out, cd.Name)
	}
	return out
}

// Codecs returns the allow-list of kind.
func (c *Controller) Codecs(kind codec.Kind) []string {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	list := c.settings.audio
	if kind == codec.KindVideo {
		list = c.settings.video
	}
	out := make([]string, 0, len(list))
	for _, cd := range list {
		out = append(out, cd.Name)
	}
	return out
}

func (c *Controller) allowed() map[string]struct{} {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	out := make(map[string]struct{}, len(c.settings.audio)+len(c.settings.video))
	for _, cd := range c.settings.audio {
		out[cd.Name] = struct{}{}
	}
	for _, cd := range c.settings.video {
		out[cd.Name] = struct{}{}
	}
	return out
}

// SetMeta sets the blob returned to request-meta.
func (c *Controller) SetMeta(meta map[string]any) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.settings.meta = maps.Clone(meta)
}

func (c *Controller) Meta() map[string]any {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return maps.Clone(c.settings.meta)
}

func (c *Controller) SetProducerID(id string) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.settings.producerID = id
}

func (c *Controller) ProducerID() string {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings.producerID
}
