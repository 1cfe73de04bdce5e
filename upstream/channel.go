package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	errs "github.com/alexjbarnes/relaydeck/internal/errors"
	"github.com/alexjbarnes/relaydeck/internal/metrics"
)

// Lifecycle events dispatched by the Channel itself in addition to
// whatever the server emits.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventReconnectFailed = "reconnect_failed"
)

const (
	// joinEvent is the client command that joins a room.
	joinEvent = "join"

	// channelReadLimit caps the size of a single inbound frame. Progress
	// events are small; anything larger is a protocol error.
	channelReadLimit = 1 << 20

	dialTimeout = 10 * time.Second

	// channelJitterDivisor bounds the random jitter added to each
	// backoff: jitter is uniform in [0, backoff/channelJitterDivisor).
	channelJitterDivisor = 4

	channelBackoffMultiplier = 2
)

// ChannelState is the connection state reported by Channel.State.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	StateReconnecting ChannelState = "reconnecting"
	StateFailed       ChannelState = "failed"
)

// Handler receives the raw data of one event. Lifecycle events carry
// nil data.
type Handler func(data []byte)

// wsConn abstracts the WebSocket connection so Channel can be tested
// without a real server. *websocket.Conn satisfies this interface.
//
//go:generate mockgen -source=channel.go -destination=mock_wsconn_test.go -package=upstream -mock_names=wsConn=MockWSConn
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// ChannelConfig holds the push channel connection parameters.
type ChannelConfig struct {
	URL        string
	Tokens     TokenSource
	Attempts   int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Channel owns the single shared push channel connection. Any number of
// handlers may be registered per event name; they are dispatched
// sequentially from the reader goroutine in registration order.
//
// Connect is idempotent: while a connection (or an automatic reconnect)
// is in progress it returns the existing Link. When the connection drops
// the Channel redials with bounded attempts and exponential backoff,
// re-joins every remembered room, and dispatches EventConnect again.
// Once attempts are exhausted it dispatches EventReconnectFailed and
// moves to StateFailed. The process keeps running; callers fall back to
// polling.
type Channel struct {
	cfg    ChannelConfig
	logger *slog.Logger
	dial   func(ctx context.Context) (wsConn, error)

	connecting singleflight.Group

	mu       sync.Mutex
	link     *Link
	state    ChannelState
	rooms    []string
	handlers map[string]map[uint64]Handler
	nextID   uint64
}

// Link is the handle for a live connection. It stays valid across
// automatic reconnects and is closed by Disconnect or by reconnect
// exhaustion.
type Link struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn wsConn
}

// NewChannel creates a push channel client. Nothing is dialled until
// Connect is called.
func NewChannel(cfg ChannelConfig, logger *slog.Logger) *Channel {
	if cfg.Tokens == nil {
		cfg.Tokens = StaticToken("")
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}

	c := &Channel{
		cfg:      cfg,
		logger:   logger,
		state:    StateDisconnected,
		handlers: make(map[string]map[uint64]Handler),
	}
	c.dial = c.dialWebsocket

	return c
}

func (c *Channel) dialWebsocket(ctx context.Context) (wsConn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if token := c.cfg.Tokens.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.cfg.URL, err)
	}

	conn.SetReadLimit(channelReadLimit)

	return conn, nil
}

// State reports the current connection state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect returns the live Link, dialling a new connection if there is
// none. Concurrent callers share a single dial. The connection outlives
// ctx; only the dial itself is bound to it.
func (c *Channel) Connect(ctx context.Context) (*Link, error) {
	if l := c.currentLink(); l != nil {
		return l, nil
	}

	v, err, _ := c.connecting.Do("connect", func() (interface{}, error) {
		if l := c.currentLink(); l != nil {
			return l, nil
		}

		c.mu.Lock()
		c.state = StateConnecting
		c.mu.Unlock()

		c.logger.Debug("connecting push channel", slog.String("url", c.cfg.URL))

		conn, err := c.dialWithRetry(ctx)
		if err != nil {
			c.mu.Lock()
			if c.link == nil {
				c.state = StateFailed
			}
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", errs.ErrTransport, err)
		}

		linkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		l := &Link{
			ctx:    linkCtx,
			cancel: cancel,
			done:   make(chan struct{}),
			conn:   conn,
		}

		c.mu.Lock()
		c.link = l
		c.state = StateConnected
		rooms := slices.Clone(c.rooms)
		c.mu.Unlock()

		c.onConnected(l, conn, rooms)
		go c.run(l)

		return l, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Link), nil
}

// Subscribe joins room on the live connection and remembers it so it is
// re-joined after every reconnect. It never blocks on failure: write
// errors are logged and the join is retried on the next reconnect.
func (c *Channel) Subscribe(ctx context.Context, room string) {
	c.mu.Lock()
	if !slices.Contains(c.rooms, room) {
		c.rooms = append(c.rooms, room)
	}
	l := c.link
	c.mu.Unlock()

	if l == nil {
		c.logger.Debug("room join deferred until connected", slog.String("room", room))
		return
	}

	if err := l.write(ctx, Frame{Event: joinEvent, Data: JoinPayload{UserID: room}}); err != nil {
		c.logger.Warn("room join failed",
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
	}
}

// OnEvent registers handler for event and returns a function that
// unregisters it. The returned function is safe to call more than once.
func (c *Channel) OnEvent(event string, handler Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.handlers[event], id)
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
		})
	}
}

// Emit sends an event to the server on the live connection.
func (c *Channel) Emit(ctx context.Context, event string, data any) error {
	l := c.currentLink()
	if l == nil {
		return errs.ErrNotConnected
	}
	return l.write(ctx, Frame{Event: event, Data: data})
}

// Disconnect tears down the shared connection and forgets all rooms. A
// later Connect dials a fresh connection. Registered handlers are kept.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.rooms = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if l == nil {
		return
	}

	l.close(websocket.StatusNormalClosure, "bye")
	metrics.ChannelConnected.Set(0)
	c.logger.Info("push channel disconnected")
	c.dispatch(EventDisconnect, nil)
}

func (c *Channel) currentLink() *Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// transition sets the state only while l is still the current link, so
// a link torn down by Disconnect cannot overwrite the new state.
func (c *Channel) transition(l *Link, state ChannelState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l {
		return false
	}
	c.state = state
	return true
}

func (c *Channel) onConnected(l *Link, conn wsConn, rooms []string) {
	metrics.ChannelConnected.Set(1)
	c.logger.Info("push channel connected", slog.Int("rooms", len(rooms)))

	for _, room := range rooms {
		if err := writeFrame(l.ctx, conn, Frame{Event: joinEvent, Data: JoinPayload{UserID: room}}); err != nil {
			c.logger.Warn("room rejoin failed",
				slog.String("room", room),
				slog.String("error", err.Error()),
			)
		}
	}

	c.dispatch(EventConnect, nil)
}

// run reads frames until the connection drops, then reconnects. It
// returns when the link is cancelled or reconnect attempts run out.
func (c *Channel) run(l *Link) {
	defer close(l.done)

	for {
		err := c.readLoop(l)
		if l.ctx.Err() != nil {
			return
		}

		if !c.transition(l, StateReconnecting) {
			return
		}

		metrics.ChannelConnected.Set(0)
		c.logger.Warn("push channel lost, reconnecting", slog.String("error", err.Error()))
		c.dispatch(EventDisconnect, nil)

		conn, err := c.dialWithRetry(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}

			metrics.ChannelReconnectExhausted.Inc()
			c.logger.Error("push channel reconnect failed, continuing without push updates",
				slog.Int("attempts", c.cfg.Attempts),
				slog.String("error", err.Error()),
			)

			c.mu.Lock()
			current := c.link == l
			if current {
				c.link = nil
				c.state = StateFailed
			}
			c.mu.Unlock()

			l.cancel()
			if current {
				c.dispatch(EventReconnectFailed, nil)
			}
			return
		}

		if !l.swap(conn) || !c.transition(l, StateConnected) {
			return
		}

		c.mu.Lock()
		rooms := slices.Clone(c.rooms)
		c.mu.Unlock()

		c.onConnected(l, conn, rooms)
	}
}

// readLoop dispatches frames from the link's current connection until a
// read fails.
func (c *Channel) readLoop(l *Link) error {
	conn := l.current()

	for {
		_, data, err := conn.Read(l.ctx)
		if err != nil {
			return fmt.Errorf("%w: reading frame: %w", errs.ErrTransport, err)
		}

		event, payload, ok := decodeFrame(data)
		if !ok {
			c.logger.Debug("ignoring unrecognised frame", slog.Int("bytes", len(data)))
			continue
		}

		c.dispatch(event, payload)
	}
}

// dialWithRetry dials up to cfg.Attempts times. The delay between
// attempts starts at BackoffMin, doubles, and never exceeds BackoffMax.
func (c *Channel) dialWithRetry(ctx context.Context) (wsConn, error) {
	backoff := c.cfg.BackoffMin

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			metrics.ChannelReconnectAttempts.Inc()
		}

		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.cfg.Attempts {
			break
		}

		delay := backoff
		if span := int64(backoff) / channelJitterDivisor; span > 0 {
			delay += time.Duration(rand.Int64N(span)) //nolint:gosec // G404: math/rand is fine for reconnect jitter, no security impact
		}
		delay = min(delay, c.cfg.BackoffMax)

		c.logger.Warn("push channel dial failed",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*channelBackoffMultiplier, c.cfg.BackoffMax)
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", errs.ErrReconnectExhausted, c.cfg.Attempts, lastErr)
}

func (c *Channel) dispatch(event string, data []byte) {
	c.mu.Lock()
	registered := c.handlers[event]
	ids := make([]uint64, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, registered[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

// decodeFrame accepts both {"event":..., "data":...} objects and
// ["event", data] arrays.
func decodeFrame(data []byte) (string, []byte, bool) {
	if !gjson.ValidBytes(data) {
		return "", nil, false
	}

	doc := gjson.ParseBytes(data)
	switch {
	case doc.IsArray():
		items := doc.Array()
		if len(items) == 0 || items[0].Type != gjson.String || items[0].Str == "" {
			return "", nil, false
		}
		if len(items) == 1 {
			return items[0].Str, nil, true
		}
		return items[0].Str, []byte(items[1].Raw), true
	case doc.IsObject():
		event := doc.Get("event")
		if event.Type != gjson.String || event.Str == "" {
			return "", nil, false
		}
		payload := doc.Get("data")
		if !payload.Exists() {
			return event.Str, nil, true
		}
		return event.Str, []byte(payload.Raw), true
	}

	return "", nil, false
}

func writeFrame(ctx context.Context, conn wsConn, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshalling frame: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: writing %s frame: %w", errs.ErrTransport, frame.Event, err)
	}

	return nil
}

// Done is closed once the link has shut down for good.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) current() wsConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// swap installs a reconnected conn. It returns false, closing conn, when
// the link was cancelled in the meantime.
func (l *Link) swap(conn wsConn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		return false
	}
	l.conn = conn
	return true
}

func (l *Link) close(code websocket.StatusCode, reason string) {
	l.mu.Lock()
	l.cancel()
	conn := l.conn
	l.mu.Unlock()

	_ = conn.Close(code, reason)
}

func (l *Link) write(ctx context.Context, frame Frame) error {
	return writeFrame(ctx, l.current(), frame)
}
