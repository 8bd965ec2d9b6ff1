package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/hub"
)

const (
	DefaultPath                 = "/ws/notifications"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultBaseDelay            = time.Second
	DefaultMaxDelay             = 30 * time.Second
)

// Options configures a Manager. Zero values fall back to the defaults above.
type Options struct {
	BaseURL              string
	Path                 string
	Dialer               Dialer
	Clock                Clock
	Logger               *slog.Logger
	HeartbeatInterval    time.Duration
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	SubscriberBuffer     int

	// OnStateChange is called after every state transition, outside the
	// manager's lock. Reaching StateTerminated without a Disconnect call
	// means the reconnect budget ran out.
	OnStateChange func(from, to State)
}

type feedKey struct{}

// Manager owns the single realtime connection of a session. It connects,
// heartbeats, reconnects with bounded exponential backoff and fans decoded
// frames out to subscribers. None of its methods fail on transport errors.
type Manager struct {
	opts    Options
	baseURL *url.URL
	clock   Clock
	logger  *slog.Logger
	hub     *hub.Hub[feedKey, notification.Frame]

	mu             sync.Mutex
	state          State
	scope          notification.Scope
	conn           Conn
	attempt        int
	maxAttempts    int
	gen            uint64
	dialCancel     context.CancelFunc
	heartbeatTimer Timer
	reconnectTimer Timer
	transitions    []transition
	retired        []Conn
	closed         bool
}

// NewManager creates a Manager in the Idle state.
func NewManager(opts Options) (*Manager, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}

	return &Manager{
		opts:        opts,
		baseURL:     base,
		clock:       opts.Clock,
		logger:      opts.Logger.With("component", "realtime"),
		hub:         hub.New[feedKey, notification.Frame](opts.SubscriberBuffer),
		maxAttempts: opts.MaxReconnectAttempts,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return nil, fmt.Errorf("realtime base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	return u, nil
}

// Connect opens the connection for the given user and optional organization.
// Any existing connection or pending reconnect is dropped first, and the
// reconnect budget is re-armed.
func (m *Manager) Connect(userID, organizationID string) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)

	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.closed {
		return
	}
	if userID == "" {
		m.logger.Warn("realtime connect skipped", "error", notification.ErrMissingUserID)
		return
	}

	m.teardownLocked()
	m.scope = notification.Scope{UserID: userID, OrganizationID: organizationID}
	m.maxAttempts = m.opts.MaxReconnectAttempts
	m.attempt = 0
	m.openLocked()
}

// Disconnect closes the connection and suppresses every pending or future
// reconnect until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.unlockAndNotify()

	m.maxAttempts = 0
	if m.state == StateIdle || m.state == StateTerminated {
		m.teardownLocked()
		return
	}
	m.setStateLocked(StateClosing)
	m.teardownLocked()
	m.setStateLocked(StateTerminated)
	m.logger.Info("realtime disconnected", "user_id", m.scope.UserID)
}

// Close disconnects and closes every subscriber channel. The manager cannot
// be reused afterwards.
func (m *Manager) Close() {
	m.Disconnect()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.hub.CloseAll()
}

// Subscribe returns a channel carrying every decoded frame in arrival order.
// The cancel func is idempotent.
func (m *Manager) Subscribe() (<-chan notification.Frame, func()) {
	return m.hub.Subscribe(feedKey{})
}

// OnNotification runs handler for every decoded frame until the returned
// unsubscribe func is called. Unsubscribe is idempotent and waits for a
// handler call in progress, so handler never runs after it returns. It must
// not be called from inside handler.
func (m *Manager) OnNotification(handler func(notification.Frame)) func() {
	ch, cancel := m.Subscribe()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case frame, ok := <-ch:
				if !ok {
					return
				}
				// buffered frames are discarded once unsubscribed
				select {
				case <-stop:
					return
				default:
				}
				handler(frame)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			cancel()
			<-done
		})
	}
}

// IsConnected reports whether the transport is open
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the current reconnect attempt counter
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Scope returns the identity of the last Connect call
func (m *Manager) Scope() notification.Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// DroppedFrames counts frames a full subscriber could not take
func (m *Manager) DroppedFrames() int64 {
	return m.hub.Dropped()
}

func (m *Manager) endpointLocked() string {
	u := *m.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(m.opts.Path, "/")
	q := url.Values{}
	q.Set("user_id", m.scope.UserID)
	q.Set("org_id", m.scope.OrganizationID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (m *Manager) openLocked() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel
	m.setStateLocked(StateConnecting)
	m.logger.Debug("realtime connecting", "user_id", m.scope.UserID, "org_id", m.scope.OrganizationID, "attempt", m.attempt)
	go m.dial(ctx, gen, m.endpointLocked())
}

func (m *Manager) dial(ctx context.Context, gen uint64, endpoint string) {
	conn, err := m.opts.Dialer.Dial(ctx, endpoint)

	m.mu.Lock()
	defer m.unlockAndNotify()

	if gen != m.gen {
		if conn != nil {
			m.retired = append(m.retired, conn)
		}
		return
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if err != nil {
		m.logger.Warn("realtime connection failed", "error", err, "attempt", m.attempt)
		m.handleDropLocked()
		return
	}

	m.conn = conn
	m.attempt = 0
	m.setStateLocked(StateOpen)
	m.scheduleHeartbeatLocked(gen)
	m.logger.Info("realtime connected", "user_id", m.scope.UserID, "org_id", m.scope.OrganizationID)
	go m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if gen == m.gen {
				m.logger.Warn("realtime connection lost", "error", err)
				m.handleDropLocked()
			}
			m.unlockAndNotify()
			return
		}
		if !m.dispatch(gen, data) {
			return
		}
	}
}

// dispatch decodes and publishes one frame. It returns false once the
// connection that produced the frame is no longer current.
func (m *Manager) dispatch(gen uint64, data []byte) bool {
	frame, err := notification.DecodeFrame(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}
	switch {
	case errors.Is(err, notification.ErrHeartbeatFrame):
		return true
	case err != nil:
		m.logger.Warn("dropping realtime frame", "error", err)
		return true
	}

	before := m.hub.Dropped()
	m.hub.Publish(feedKey{}, frame)
	if dropped := m.hub.Dropped() - before; dropped > 0 {
		m.logger.Warn("realtime subscribers full, frame skipped", "type", frame.RawType, "subscribers", dropped)
	}
	return true
}

// handleDropLocked moves a failed Connecting/Open connection to
// ReconnectPending, or to Terminated once the budget is spent.
func (m *Manager) handleDropLocked() {
	m.stopHeartbeatLocked()
	m.retireConnLocked()
	m.gen++

	if m.attempt >= m.maxAttempts {
		m.setStateLocked(StateTerminated)
		m.logger.Warn("realtime reconnect attempts exhausted", "attempts", m.attempt)
		return
	}

	delay := Backoff(m.attempt, m.opts.BaseDelay, m.opts.MaxDelay)
	gen := m.gen
	m.setStateLocked(StateReconnectPending)
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnect(gen) })
	m.logger.Info("realtime reconnect scheduled", "delay", delay, "attempt", m.attempt+1)
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if gen != m.gen || m.state != StateReconnectPending {
		return
	}
	m.reconnectTimer = nil
	m.attempt++
	m.openLocked()
}

func (m *Manager) scheduleHeartbeatLocked(gen uint64) {
	m.heartbeatTimer = m.clock.AfterFunc(m.opts.HeartbeatInterval, func() { m.heartbeat(gen) })
}

func (m *Manager) heartbeat(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.scheduleHeartbeatLocked(gen)
	m.mu.Unlock()

	if err := conn.WriteMessage([]byte(notification.HeartbeatPing)); err != nil {
		m.logger.Warn("realtime heartbeat failed", "error", err)
		// the read loop sees the closed transport and reconnects
		_ = conn.Close()
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
}

func (m *Manager) teardownLocked() {
	m.gen++
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.stopHeartbeatLocked()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.retireConnLocked()
}

// retireConnLocked detaches the current transport. unlockAndNotify closes it
// once the lock is released, since a close handshake can block.
func (m *Manager) retireConnLocked() {
	if m.conn != nil {
		m.retired = append(m.retired, m.conn)
		m.conn = nil
	}
}

func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.transitions = append(m.transitions, transition{from: m.state, to: next})
	m.logger.Debug("realtime state", "from", m.state.String(), "to", next.String())
	m.state = next
}

func (m *Manager) unlockAndNotify() {
	pending := m.transitions
	m.transitions = nil
	retired := m.retired
	m.retired = nil
	m.mu.Unlock()

	for _, conn := range retired {
		_ = conn.Close()
	}

	if m.opts.OnStateChange == nil {
		return
	}
	for _, t := range pending {
		m.opts.OnStateChange(t.from, t.to)
	}
}
