package llmws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/callrelay/runtime/types"
)

// errConnClosed is returned by writes after Close.
var errConnClosed = errors.New("websocket connection closed")

// conn wraps a server-side WebSocket. Writes are serialized because
// gorilla/websocket supports one concurrent writer.
type conn struct {
	ws         *websocket.Conn
	writeWait  time.Duration
	pongWait   time.Duration
	closeGrace time.Duration

	mu      sync.Mutex
	writeMu sync.Mutex
	closed  bool
	closeCh chan struct{}
}

func newConn(ws *websocket.Conn, cfg *connConfig) *conn {
	c := &conn{
		ws:         ws,
		writeWait:  cfg.writeWait,
		pongWait:   cfg.pongWait,
		closeGrace: cfg.closeGrace,
		closeCh:    make(chan struct{}),
	}
	ws.SetReadLimit(cfg.readLimit)
	if c.pongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(c.pongWait))
		ws.SetPongHandler(func(string) error {
			return c.extendReadDeadline()
		})
	}
	return c
}

type connConfig struct {
	writeWait  time.Duration
	pongWait   time.Duration
	closeGrace time.Duration
	readLimit  int64
}

func (c *conn) extendReadDeadline() error {
	if c.pongWait <= 0 {
		return nil
	}
	return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
}

// WriteFrame sends a response frame.
func (c *conn) WriteFrame(frame types.Frame) error {
	return c.writeJSON(frame)
}

// WritePingPong sends a keepalive echo.
func (c *conn) WritePingPong(pong types.PingPong) error {
	return c.writeJSON(pong)
}

func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *conn) write(messageType int, data []byte) error {
	if c.isClosed() {
		return errConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// read returns the next text or binary message.
func (c *conn) read() ([]byte, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.extendReadDeadline()
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// heartbeat pings the peer every interval until the connection closes.
func (c *conn) heartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close sends a close frame with code and closes the socket. Later calls are no-ops.
func (c *conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.closeGrace))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
