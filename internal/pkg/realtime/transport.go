package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a live realtime transport carrying text frames.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a realtime transport to endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Timer is a pending one-shot callback
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks; tests replace it to drive timers by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	WriteTimeout time.Duration
}

func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: http %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsConn{ws: ws, writeTimeout: writeTimeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
