package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

var errDialRefused = errors.New("connection refused")

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock records timers and fires them only when a test asks.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// active returns timers that were neither stopped nor fired
func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) activeWithDelay(d time.Duration) *fakeTimer {
	for _, t := range c.active() {
		if t.delay == d {
			return t
		}
	}
	return nil
}

// fire runs t even if it was stopped, like a timer racing its Stop call.
func (c *fakeClock) fire(t *fakeTimer) {
	c.mu.Lock()
	t.fired = true
	c.mu.Unlock()
	t.fn()
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeDialer blocks every Dial until the test hands it a result.
type fakeDialer struct {
	mu        sync.Mutex
	endpoints []string
	results   chan dialResult
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: make(chan dialResult, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-d.results:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	}
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) lastEndpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.endpoints) == 0 {
		return ""
	}
	return d.endpoints[len(d.endpoints)-1]
}

func (d *fakeDialer) succeed() *fakeConn {
	conn := newFakeConn()
	d.results <- dialResult{conn: conn}
	return conn
}

func (d *fakeDialer) succeedWith(conn *fakeConn) {
	d.results <- dialResult{conn: conn}
}

func (d *fakeDialer) fail() {
	d.results <- dialResult{err: errDialRefused}
}

type fakeConn struct {
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	// closeGate, when set, holds Close until the test closes it
	closeGate chan struct{}

	mu      sync.Mutex
	written []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	if c.closeGate != nil {
		<-c.closeGate
	}
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) send(payload string) {
	c.inbox <- []byte(payload)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
