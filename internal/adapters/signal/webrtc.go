package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/rtcsub/internal/core"
	"github.com/pion/webrtc/v4"
)

type sdpMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
}

type candidateMessage struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint32 `json:"sdpMLineIndex"`
	Target        string `json:"target,omitempty"`
}

type consumerAddedMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
	Role   string `json:"role"`
	URI    string `json:"uri,omitempty"`
}

func (c *Client) handleOffer(conn *WsSignalConn, data []byte) {
	var p sdpMessage
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Error().Err(err).Msg("bad offer payload")
		return
	}
	sid := core.SessionID(p.SessionID)
	if !c.limiter.Allow(p.SessionID) {
		c.log.Warn().Str("sid", p.SessionID).Msg("offer rate limited")
		_ = c.sendJSON(conn, errorMessage{Type: "error", SessionID: p.SessionID, Error: "rate_limited"})
		return
	}

	c.mu.RLock()
	fn := c.onOffer
	c.mu.RUnlock()
	if fn == nil {
		c.log.Warn().Str("sid", p.SessionID).Msg("offer without handler")
		return
	}
	fn(sid, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
}

func (c *Client) handleCandidate(data []byte) {
	var p candidateMessage
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Error().Err(err).Msg("bad candidate payload")
		return
	}
	rc := core.RemoteCandidate{
		SessionID: core.SessionID(p.SessionID),
		MLine:     p.SDPMLineIndex,
		Candidate: p.Candidate,
	}
	switch core.LegRole(p.Target) {
	case core.RolePublisher, core.RoleSubscriber:
		rc.Target = core.LegRole(p.Target)
	case "":
	default:
		c.log.Warn().Str("target", p.Target).Msg("unknown candidate target, using subscriber")
	}

	c.mu.RLock()
	fn := c.onCandidate
	c.mu.RUnlock()
	if fn != nil {
		fn(rc)
	}
}

func (c *Client) SendAnswer(sid core.SessionID, answer webrtc.SessionDescription) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("send answer: unexpected type %s", answer.Type)
	}
	return c.sendJSON(conn, sdpMessage{Type: "answer", SessionID: string(sid), SDP: answer.SDP})
}

func (c *Client) SendICE(sid core.SessionID, candidate string, mline uint32) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return c.sendJSON(conn, candidateMessage{
		Type:          "candidate",
		SessionID:     string(sid),
		Candidate:     candidate,
		SDPMLineIndex: mline,
	})
}

// AnnouncePublisher tells the server that the local producer is ready.
// Before Start the announcement is held and sent once connected.
func (c *Client) AnnouncePublisher(peerID string, _ core.TransportLeg) {
	uri, _ := c.URI()
	msg := consumerAddedMessage{Type: "consumer_added", PeerID: peerID, Role: string(core.RolePublisher), URI: uri}

	c.mu.Lock()
	c.announce = &msg
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.log.Debug().Str("peer_id", peerID).Msg("announce held until start")
		return
	}
	if err := c.sendJSON(conn, msg); err != nil {
		c.log.Warn().Err(err).Str("peer_id", peerID).Msg("announce publisher")
	}
}
