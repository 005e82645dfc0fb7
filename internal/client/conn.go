package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moonheart/nodenexus-go/internal/auth"
	"github.com/moonheart/nodenexus-go/internal/event"
)

const writeTimeout = 10 * time.Second

// State is the lifecycle state of the logical connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateOpen:       "open",
	StateClosing:    "closing",
	StateClosed:     "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Policy controls reconnect backoff. The delay for a given attempt is a pure
// function of the attempt number.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// Delay returns min(cap, base * 2^attempt) for attempt >= 1.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.CapDelay {
			return p.CapDelay
		}
	}
	return d
}

// Options configures a Manager. Zero fields fall back to the defaults noted
// on each field.
type Options struct {
	BaseURL    string // http(s) base URL of the panel
	WSPath     string // endpoint path, default "/ws/batch"
	Auth       auth.Provider
	Bus        *event.Bus
	Policy     Policy        // default: 5 attempts, 1s base, 30s cap
	ListWindow time.Duration // full-list throttle window, default 2s
}

// Manager owns the single live WebSocket connection to the panel. It is the
// only component that touches the transport handle and the attempt counter;
// everything else observes derived state through bus events.
//
// A reconnect always builds a fresh *websocket.Conn. Read callbacks from a
// superseded connection are discarded, so frames from an old connection can
// never be delivered after a newer connection's frames.
type Manager struct {
	baseURL string
	wsPath  string
	auth    auth.Provider
	bus     *event.Bus
	policy  Policy
	dialer  *websocket.Dialer

	listThrottle *throttle

	writeMu sync.Mutex // serialises transport writes (commands, pong)

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	attempts    int
	intentional bool
	retryTimer  *time.Timer
}

func NewManager(opts Options) *Manager {
	if opts.WSPath == "" {
		opts.WSPath = "/ws/batch"
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy.MaxAttempts = 5
	}
	if opts.Policy.BaseDelay == 0 {
		opts.Policy.BaseDelay = time.Second
	}
	if opts.Policy.CapDelay == 0 {
		opts.Policy.CapDelay = 30 * time.Second
	}
	if opts.ListWindow == 0 {
		opts.ListWindow = 2 * time.Second
	}
	m := &Manager{
		baseURL: opts.BaseURL,
		wsPath:  opts.WSPath,
		auth:    opts.Auth,
		bus:     opts.Bus,
		policy:  opts.Policy,
		dialer:  websocket.DefaultDialer,
	}
	m.listThrottle = newThrottle(opts.ListWindow, func(payload any) {
		m.bus.Emit(EventFullServerList, payload)
	})
	return m
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the channel. It is a no-op while already connecting or open.
// A missing credential is reported on the bus as EventError; Connect never
// returns an error itself because all outcomes, including the eventual open,
// are asynchronous.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	token := m.auth.Token()
	if token == "" {
		m.mu.Unlock()
		m.bus.Emit(EventError, errors.New("connect: no credential available"))
		return
	}
	// Re-initiating supersedes any pending retry: a timer left armed here
	// would fork a second reconnect chain racing this one.
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.attempts = 0
	m.state = StateConnecting
	m.intentional = false
	m.mu.Unlock()

	go m.dial(token)
}

// Send marshals v as JSON and writes it to the transport. It fails with a
// local error while the connection is not open; nothing is queued.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("send: connection is %s", state)
	}
	conn := m.conn
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// Disconnect closes the channel deliberately. Any pending reconnect timer is
// cancelled synchronously, so no reconnect can fire after this returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	if conn != nil {
		m.state = StateClosing
	} else {
		m.state = StateIdle
	}
	m.mu.Unlock()

	m.listThrottle.Stop()

	if conn != nil {
		conn.Close()
		m.mu.Lock()
		m.state = StateClosed
		m.mu.Unlock()
	}
}

func (m *Manager) dial(token string) {
	wsURL, err := m.endpoint(token)
	if err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		m.bus.Emit(EventError, fmt.Errorf("connect: %w", err))
		return
	}

	conn, _, err := m.dialer.Dial(wsURL, nil)
	if err != nil {
		m.scheduleReconnect(fmt.Errorf("dial: %w", err))
		return
	}

	m.mu.Lock()
	if m.intentional {
		// Disconnect raced the dial; drop the fresh connection.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.mu.Unlock()

	m.bus.Emit(EventOpen, nil)
	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()

		// A superseded connection's callbacks must not leak through.
		m.mu.Lock()
		stale := m.conn != conn
		m.mu.Unlock()
		if stale {
			conn.Close()
			return
		}

		if err != nil {
			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()
			conn.Close()
			m.scheduleReconnect(err)
			return
		}

		m.handleFrame(data)
	}
}

// scheduleReconnect runs the backoff state machine after a non-intentional
// close (including a failed dial).
func (m *Manager) scheduleReconnect(cause error) {
	m.mu.Lock()
	if m.intentional {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	if m.attempts >= m.policy.MaxAttempts {
		m.mu.Unlock()
		m.bus.Emit(EventPermanentFailure, fmt.Errorf("reconnect attempts exhausted: %w", cause))
		return
	}
	m.attempts++
	delay := m.policy.Delay(m.attempts)
	m.retryTimer = time.AfterFunc(delay, m.retry)
	m.mu.Unlock()

	m.bus.Emit(EventClosed, cause)
}

// retry fires from the backoff timer. The credential is re-resolved because
// it may have rotated since the connection dropped.
func (m *Manager) retry() {
	m.mu.Lock()
	m.retryTimer = nil
	if m.intentional || m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	token := m.auth.Token()
	if token == "" {
		m.mu.Unlock()
		m.bus.Emit(EventPermanentFailure, errors.New("no credential available for reconnect"))
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.dial(token)
}

// handleFrame classifies one inbound message. Malformed payloads are dropped
// with a local diagnostic and never surface as connection errors.
func (m *Manager) handleFrame(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("ws: dropping malformed frame: %v", err)
		return
	}

	switch {
	case f.Type == "ping":
		if err := m.Send(pongFrame{Type: "pong"}); err != nil {
			log.Printf("ws: pong failed: %v", err)
		}
	case f.Type == "connected":
		// Handshake ack, nothing to forward.
	case f.Type != "":
		m.bus.Emit(event.Kind(f.Type), f.Data)
	case len(f.Servers) > 0:
		// Legacy full-list push without a type tag.
		m.listThrottle.Offer(f.Servers)
	default:
		log.Printf("ws: dropping unrecognized frame: %s", truncate(data, 120))
	}
}

func (m *Manager) endpoint(token string) (string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", m.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = m.wsPath
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
