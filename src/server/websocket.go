package server

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/jobfeed/src/hub"
	"github.com/valyala/fasthttp"
)

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// An optional ?channel= query parameter subscribes the connection on arrival.
func (s *Server) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if limit := s.cfg.Socket.MaxConnections; limit > 0 && s.hub.ClientCount() >= limit {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"too_many_connections","message":"connection limit reached"}`)
			return
		}

		clientID := uuid.New().String()
		channel := string(ctx.QueryArgs().Peek("channel"))
		userAgent := string(ctx.UserAgent())
		h := s.hub
		writeWait := s.cfg.Socket.WriteWait()

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := hub.NewClient(clientID, &fasthttpConn{conn: conn, writeWait: writeWait}, h)
			client.UserAgent = userAgent
			if !h.Register(client) {
				conn.Close()
				return
			}
			if channel != "" {
				h.Join(clientID, channel)
			}
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn. Writes
// and pings come only from the client's WritePump.
type fasthttpConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeWait > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeWait))
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error { return f.conn.ReadJSON(v) }

func (f *fasthttpConn) Ping() error {
	var deadline time.Time
	if f.writeWait > 0 {
		deadline = time.Now().Add(f.writeWait)
	}
	return f.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }
