package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

func (c *Client) writePump(ctx context.Context, conn *WsSignalConn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.sendJSON(conn, pingMessage{Type: "ping", TS: time.Now().UnixMilli()}); err != nil {
				c.log.Warn().Err(err).Msg("ping")
			}
		case data, ok := <-conn.send:
			if !ok {
				c.log.Debug().Msg("writePump channel closed")
				return
			}
			if err := conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *WsSignalConn) {
	defer func() {
		c.log.Info().Msg("readPump closing")
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("readPump ctx done")
			return
		default:
			_, data, err := conn.conn.ReadMessage()
			if err != nil {
				if c.stopping.Load() {
					return
				}
				c.log.Error().Err(err).Msg("readPump read error")
				c.fail(fmt.Errorf("signalling connection lost: %w", err))
				return
			}
			c.handleSignal(conn, data)
		}
	}
}

func (c *Client) handleSignal(conn *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Error().Err(err).Msg("bad json")
		return
	}

	switch env.Type {
	case "offer":
		c.handleOffer(conn, data)
	case "candidate":
		c.handleCandidate(data)
	case "error":
		c.handleError(data)
	case "request_meta":
		c.handleRequestMeta(conn)
	case "ping":
		c.handlePing(conn)
	case "pong":
		c.handlePong(data)
	default:
		c.log.Warn().Str("type", env.Type).Msg("unknown signal")
	}
}

func (c *Client) sendJSON(conn *WsSignalConn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("sendJSON marshal")
		return err
	}
	return conn.TrySend(b)
}
