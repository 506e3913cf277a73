// Package realtime manages the persistent push connection to the lead
// service. The channel is a pure event source: it never mutates entity
// caches; consumers subscribe with On and do their own wiring.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Transport event names, delivered to handlers like server events.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Event is one envelope from the wire.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler receives events in arrival order.
type Handler func(Event)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type ManagerOptions struct {
	// BaseURL of the realtime endpoint, e.g. "http://localhost:5000".
	BaseURL    string
	HTTPClient *http.Client
	Logger     Logger
	QueueSize  int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Manager owns the single channel slot for the process. Connect while a
// channel exists is a no-op returning the existing one; Disconnect resets
// the slot so a subsequent Connect creates a genuinely new channel.
type Manager struct {
	mu     sync.Mutex
	opts   ManagerOptions
	active *Channel
}

func NewManager(opts ManagerOptions) *Manager {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "http://localhost:5000"
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 250 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	return &Manager{opts: opts}
}

func (m *Manager) Connect(ctx context.Context, token, userID string) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active
	}
	ch := newChannel(m.opts, token, userID)
	m.active = ch
	ch.start(ctx)
	return ch
}

func (m *Manager) Disconnect() {
	m.mu.Lock()
	ch := m.active
	m.active = nil
	m.mu.Unlock()
	if ch != nil {
		ch.close()
	}
}

// Active returns the current channel, nil when disconnected.
func (m *Manager) Active() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Channel is one live push connection. It redials with capped exponential
// backoff until closed; handlers observe drops and recoveries through the
// synthetic connect/disconnect events.
type Channel struct {
	opts   ManagerOptions
	token  string
	userID string
	queue  *eventQueue

	mu       sync.Mutex
	handlers map[string][]Handler
	state    State
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
}

func newChannel(opts ManagerOptions, token, userID string) *Channel {
	return &Channel{
		opts:     opts,
		token:    token,
		userID:   userID,
		queue:    newEventQueue(opts.QueueSize),
		handlers: map[string][]Handler{},
		state:    StateDisconnected,
		done:     make(chan struct{}),
	}
}

// On registers a handler for a named event. Handlers registered for the same
// name run in registration order; events are delivered in arrival order.
func (c *Channel) On(event string, h Handler) {
	if event == "" || h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrNotConnected is returned by Emit while the channel has no live socket.
var ErrNotConnected = errors.New("realtime: not connected")

// Emit writes an envelope to the server. Fails when not connected.
func (c *Channel) Emit(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, Event{Name: event, Data: payload})
}

// Done is closed once the channel has fully shut down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	dispatcherDone := make(chan struct{})
	go c.dispatch(runCtx, dispatcherDone)
	go func() {
		defer close(c.done)
		c.run(runCtx)
		cancel()
		<-dispatcherDone
	}()
}

func (c *Channel) close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if cancel != nil {
		cancel()
	}
	<-c.done
}

func (c *Channel) dispatch(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		ev, ok := c.queue.Dequeue(ctx)
		if !ok {
			return
		}
		c.mu.Lock()
		handlers := append([]Handler(nil), c.handlers[ev.Name]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (c *Channel) run(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.opts.Logger.Printf("realtime dial failed: %v", err)
			if waitErr := sleepContext(ctx, retryDelay(c.opts.BaseDelay, c.opts.MaxDelay, attempt+1)); waitErr != nil {
				c.setState(StateDisconnected)
				return
			}
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		c.deliver(Event{Name: EventConnect})

		// announce membership in the per-user group so server events
		// addressed to this user are routed here
		if c.userID != "" {
			if err := c.Emit(ctx, "join-room", c.userID); err != nil {
				c.opts.Logger.Printf("realtime join-room failed: %v", err)
			}
		}

		c.read(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		closed := c.cancelled(ctx)
		if !closed {
			c.state = StateConnecting
		}
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		c.deliver(Event{Name: EventDisconnect})
		if closed {
			return
		}
		if waitErr := sleepContext(ctx, retryDelay(c.opts.BaseDelay, c.opts.MaxDelay, 1)); waitErr != nil {
			c.setState(StateDisconnected)
			return
		}
	}
}

func (c *Channel) read(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return
		}
		ev, err := decodeEnvelope(raw)
		if err != nil {
			c.opts.Logger.Printf("realtime frame rejected: %v", err)
			continue
		}
		if !c.queue.TryEnqueue(ev) {
			c.opts.Logger.Printf("realtime queue full, dropping %s", ev.Name)
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialURL := c.opts.BaseURL + "/socket"
	if c.token != "" {
		dialURL += "?" + url.Values{"token": {c.token}}.Encode()
	}
	conn, _, err := websocket.Dial(ctx, dialURL, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
	})
	return conn, err
}

func (c *Channel) deliver(ev Event) {
	if !c.queue.TryEnqueue(ev) {
		c.opts.Logger.Printf("realtime queue full, dropping %s", ev.Name)
	}
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Channel) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func retryDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
