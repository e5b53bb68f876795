package signal

import (
	"encoding/json"
	"errors"
	"time"
)

type pingMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts,omitempty"`
}

type errorMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
}

type metaMessage struct {
	Type string         `json:"type"`
	Meta map[string]any `json:"meta"`
}

func (c *Client) handlePing(conn *WsSignalConn) {
	_ = c.sendJSON(conn, pingMessage{Type: "pong"})
}

func (c *Client) handlePong(data []byte) {
	var p pingMessage
	if err := json.Unmarshal(data, &p); err != nil || p.TS == 0 {
		return
	}
	c.log.Debug().Dur("rtt", time.Since(time.UnixMilli(p.TS))).Msg("pong")
}

func (c *Client) handleError(data []byte) {
	var p errorMessage
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Error().Err(err).Msg("bad error payload")
		return
	}
	if p.Error == "" {
		p.Error = "unspecified signalling error"
	}
	c.log.Error().Str("sid", p.SessionID).Str("error", p.Error).Msg("server error")
	c.fail(errors.New(p.Error))
}

func (c *Client) handleRequestMeta(conn *WsSignalConn) {
	c.mu.RLock()
	fn := c.onRequestMeta
	c.mu.RUnlock()
	meta := map[string]any{}
	if fn != nil {
		if m := fn(); m != nil {
			meta = m
		}
	}
	_ = c.sendJSON(conn, metaMessage{Type: "meta", Meta: meta})
}
