package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
)

// WebSocketDialer dials transports over WebSocket.
type WebSocketDialer struct {
	// Dialer is the underlying websocket dialer. Nil uses a dialer with a
	// 10s handshake timeout.
	Dialer *websocket.Dialer
	// Header is sent with every handshake.
	Header http.Header
	Logger zerolog.Logger
}

// Dial starts connecting in the background and returns immediately.
func (d *WebSocketDialer) Dial(url string, events TransportEvents) Transport {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		events: events,
		cancel: cancel,
		logger: d.Logger.With().Str("component", "ws-transport").Logger(),
	}
	go t.run(ctx, dialer, url, d.Header.Clone())
	return t
}

// wsTransport is a single websocket connection attempt.
type wsTransport struct {
	events TransportEvents
	cancel context.CancelFunc
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool
}

func (t *wsTransport) run(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) {
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()
		if closing {
			t.events.OnClose(CloseNormalClosure, "closed before open")
			return
		}
		t.events.OnError(err)
		t.events.OnClose(CloseAbnormalClosure, err.Error())
		return
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		t.events.OnClose(CloseNormalClosure, "closed before open")
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.events.OnOpen()
	t.readLoop(conn)
}

func (t *wsTransport) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			t.events.OnMessage(data)
			continue
		}

		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()

		var ce *websocket.CloseError
		switch {
		case errors.As(err, &ce):
			t.events.OnClose(ce.Code, ce.Text)
		case closing:
			t.events.OnClose(CloseNormalClosure, "client disconnect")
		default:
			t.events.OnError(err)
			t.events.OnClose(CloseAbnormalClosure, err.Error())
		}
		return
	}
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closing {
		return ErrTransportClosed
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down. A dial still in
// progress is cancelled.
func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return nil
	}
	t.closing = true
	t.cancel()
	if t.conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		t.logger.Debug().Err(err).Msg("write close frame failed")
	}
	return t.conn.Close()
}
