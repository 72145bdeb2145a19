// Package monitor implements the real-time generation-monitoring client:
// a self-healing WebSocket connection to a generation server, an ordered
// ingestion queue over the inbound event stream, and the derived progress
// snapshot that downstream consumers read.
//
// One Client monitors one server. Clients are independent; there is no
// process-wide shared state, so tests can run several against different
// mock servers.
//
// Consumers interact through two narrow surfaces only: the subscriber
// registry (Subscribe/Unsubscribe) and the read-only snapshot queries.
// Everything handed out is a copy; the live progress, stats, and queue
// structures are owned exclusively by the client.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/forgeboard/forgeboard/pkg/protocol"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectInterval    = 5 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
)

// ErrMaxReconnectAttempts is recorded (and surfaced to error subscribers)
// when the bounded retry policy gives up. This is a terminal state; the
// caller must Connect again explicitly.
var ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")

// errAlreadyConnected is returned by Connect when a connection already
// exists or is being established.
var errAlreadyConnected = errors.New("already connected or connecting")

// Config controls one Client. The zero value of a duration or count
// field means "use the default"; AutoReconnect must be set explicitly
// (DefaultConfig enables it).
type Config struct {
	// ServerURL is the generation server's base HTTP address. The
	// streaming endpoint is derived from it.
	ServerURL string

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	HeartbeatInterval    time.Duration
	ConnectTimeout       time.Duration

	// Debug enables verbose per-message logging.
	Debug bool
}

// DefaultConfig returns the documented defaults for a server address.
func DefaultConfig(serverURL string) Config {
	return Config{
		ServerURL:            serverURL,
		AutoReconnect:        true,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectInterval:    DefaultReconnectInterval,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		ConnectTimeout:       DefaultConnectTimeout,
	}
}

// Client maintains the streaming connection and the derived state.
type Client struct {
	id     string
	cfg    Config
	url    string
	logger *slog.Logger

	tracker    *Tracker
	stats      *statsCollector
	dispatcher *Dispatcher
	queue      *messageQueue

	// now is swapped out in tests.
	now func() time.Time

	// mu guards the connection lifecycle fields below. It is never held
	// while dispatching to subscribers or writing to the transport.
	mu                sync.Mutex
	state             ConnState
	conn              *websocket.Conn
	intentionalClose  bool
	reconnectAttempts int
	reconnectTimer    *time.Timer
	lastHeartbeat     time.Time
	heartbeatStop     chan struct{}
	readDone          chan struct{}
}

// New creates a Client for the configured server. The connection is not
// opened until Connect.
func New(cfg Config) (*Client, error) {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	streamURL, err := protocol.StreamURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	return &Client{
		id:         id,
		cfg:        cfg,
		url:        streamURL,
		logger:     slog.Default().With("component", "monitor", "client_id", id[:8]),
		tracker:    NewTracker(),
		stats:      newStatsCollector(),
		dispatcher: NewDispatcher(),
		queue:      newMessageQueue(),
		now:        time.Now,
	}, nil
}

// Connect opens the streaming connection. Valid from the disconnected,
// error, and reconnecting states; a no-op error is returned when already
// connected or mid-connect. The dial is bounded by ConnectTimeout.
//
// On success the read loop and heartbeat monitor are started, the
// reconnect attempt counter resets, and a synthetic connection.open event
// is dispatched.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return errAlreadyConnected
	}
	c.state = StateConnecting
	c.intentionalClose = false
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		c.handleConnectFailure(err)
		return fmt.Errorf("connect to %s: %w", c.url, err)
	}

	now := c.now()
	heartbeatStop := make(chan struct{})
	readDone := make(chan struct{})

	c.mu.Lock()
	if c.intentionalClose {
		// Disconnect raced the dial; honor it.
		c.state = StateDisconnected
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return errors.New("disconnected during connect")
	}
	c.conn = conn
	c.state = StateConnected
	c.reconnectAttempts = 0
	c.lastHeartbeat = now
	c.heartbeatStop = heartbeatStop
	c.readDone = readDone
	c.mu.Unlock()

	c.stats.recordConnected(now)
	c.logger.Info("Connected to generation server", "url", c.url)

	go c.readLoop(conn, readDone)
	go c.heartbeatLoop(conn, heartbeatStop)

	c.dispatcher.Dispatch(&protocol.Envelope{Type: protocol.EventConnectionOpen})
	return nil
}

// handleConnectFailure records a failed dial and, when the failure
// happened inside an automatic reconnect cycle, schedules the next
// attempt. A failed first Connect does not auto-retry on its own unless
// AutoReconnect is enabled, matching the close-driven retry policy.
func (c *Client) handleConnectFailure(err error) {
	c.mu.Lock()
	intentional := c.intentionalClose
	if !intentional {
		// Disconnect may have landed while the dial was in flight; its
		// disconnected state wins over the dial failure.
		c.state = StateError
	}
	c.mu.Unlock()

	c.stats.setLastError(err.Error())
	c.logger.Error("Connection attempt failed", "url", c.url, "error", err)
	c.dispatchConnectionError(err.Error())

	if c.cfg.AutoReconnect && !intentional {
		c.scheduleReconnect()
	}
}

// Disconnect closes the connection cleanly and suppresses reconnection.
// It blocks until the read loop has exited, so it must not be called
// from inside a subscriber handler (handlers run on the read loop);
// spawn a goroutine for that case.
//
// Ordering is correctness-critical: the intentional flag is set and the
// reconnect timer cancelled BEFORE the transport closes, so the read-loop
// exit caused by this very close cannot re-trigger a reconnect cycle.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentionalClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	conn := c.conn
	c.conn = nil
	readDone := c.readDone
	c.readDone = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if readDone != nil {
		<-readDone
	}
	c.stats.recordDisconnected()
	c.logger.Info("Disconnected")
}

// readLoop consumes frames until the transport closes, then routes the
// exit through the close-handling policy.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.handleReadExit(err)
			return
		}
		c.handleFrame(data)
	}
}

// handleReadExit implements the close policy: a client-initiated close
// stays disconnected; an abnormal close hands off to the reconnect
// scheduler when enabled. Transport failures that are not close frames
// land in the error state and are surfaced to error subscribers before
// the close disposition is applied.
func (c *Client) handleReadExit(err error) {
	status := websocket.CloseStatus(err)

	c.mu.Lock()
	if c.intentionalClose {
		// Disconnect already transitioned the state and stopped timers.
		c.mu.Unlock()
		return
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	c.conn = nil
	if status == -1 {
		// Not a close frame but a transport-level failure.
		c.state = StateError
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.stats.recordDisconnected()

	if status == -1 {
		// Record the failure and notify error subscribers; the reconnect
		// decision below still follows the (abnormal) close disposition.
		c.stats.setLastError(err.Error())
		c.dispatchConnectionError(err.Error())
	}

	c.logger.Warn("Connection closed", "status", status, "error", err)
	c.dispatcher.Dispatch(&protocol.Envelope{Type: protocol.EventConnectionClose})

	clean := status == websocket.StatusNormalClosure
	if clean || !c.cfg.AutoReconnect {
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect applies the bounded fixed-interval retry policy.
// When the attempt cap is reached no timer is scheduled and the terminal
// error is recorded; the counter only resets on a successful Connect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.intentionalClose {
		c.mu.Unlock()
		return
	}
	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		c.state = StateDisconnected
		c.mu.Unlock()
		c.stats.setLastError(ErrMaxReconnectAttempts.Error())
		c.logger.Error("Giving up on reconnection",
			"attempts", c.cfg.MaxReconnectAttempts)
		c.dispatchConnectionError(ErrMaxReconnectAttempts.Error())
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.state = StateReconnecting
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectInterval, func() {
		if err := c.Connect(context.Background()); err != nil && !errors.Is(err, errAlreadyConnected) {
			c.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)
		}
	})
	c.mu.Unlock()

	c.stats.recordReconnection()
	c.logger.Info("Reconnect scheduled",
		"attempt", attempt,
		"max_attempts", c.cfg.MaxReconnectAttempts,
		"delay", c.cfg.ReconnectInterval)
}

// heartbeatLoop runs while connected. Any parsed inbound message counts
// as a heartbeat; if two full intervals pass in silence the connection is
// presumed dead and the loop forces a reconnect cycle itself instead of
// waiting for the transport to notice.
func (c *Client) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			last := c.lastHeartbeat
			state := c.state
			c.mu.Unlock()

			if state != StateConnected {
				return
			}
			if c.now().Sub(last) <= 2*c.cfg.HeartbeatInterval {
				continue
			}

			c.logger.Warn("Heartbeat timeout, forcing reconnect",
				"last_message_age", c.now().Sub(last))
			// The only path that can initiate reconnection while the
			// transport still believes it is open. Closing the socket
			// unwinds the read loop, whose abnormal-close handling runs
			// the reconnect scheduler.
			_ = conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
			return
		}
	}
}

// handleFrame is the ingestion path: parse, count, enqueue, drain.
// Malformed frames are logged and dropped without touching connection
// state or the message counters; the single non-retrying path.
func (c *Client) handleFrame(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		c.stats.recordParseError()
		c.logger.Warn("Failed to parse message", "error", err)
		return
	}

	now := c.now()
	c.stats.recordMessage(now)

	c.mu.Lock()
	c.lastHeartbeat = now
	c.mu.Unlock()

	if c.cfg.Debug {
		c.logger.Debug("Message received", "type", env.Type)
	}

	c.queue.push(env, now)
	c.drainQueue()
}

// drainQueue processes pending items in arrival order: progress
// transition first, then subscriber fan-out. Failures are retried by the
// queue up to its cap and then swallowed.
func (c *Client) drainQueue() {
	c.queue.drain(
		func(item *queueItem) error {
			if err := c.tracker.Apply(item.env); err != nil {
				return err
			}
			c.dispatcher.Dispatch(item.env)
			c.stats.recordLatency(c.now().Sub(item.receivedAt))
			return nil
		},
		func(item *queueItem) {
			c.stats.recordDropped()
			c.logger.Warn("Dropping message after repeated processing failures",
				"message_id", item.id, "type", item.env.Type, "retries", item.retryCount)
		},
	)
}

// dispatchConnectionError emits a synthetic connection.error event.
func (c *Client) dispatchConnectionError(msg string) {
	c.dispatcher.Dispatch(&protocol.Envelope{
		Type: protocol.EventConnectionError,
		Data: []byte(fmt.Sprintf("{\"message\":%q}", msg)),
	})
}

// Subscribe registers a handler for an event key: the catch-all "*", an
// exact event type, a synthetic connection.* type, or a coarse category.
// Handlers run on the read-loop goroutine and must not call Disconnect
// directly, since Disconnect waits for that goroutine to exit.
func (c *Client) Subscribe(key string, fn Handler) *Subscription {
	return c.dispatcher.Subscribe(key, fn)
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProgressSnapshot returns a copy of the current generation progress.
func (c *Client) ProgressSnapshot() Progress {
	return c.tracker.Snapshot()
}

// StatsSnapshot returns a copy of the accumulated counters.
func (c *Client) StatsSnapshot() Stats {
	return c.stats.snapshot(c.now())
}

// AverageLatency returns the mean ingest-to-processed latency.
func (c *Client) AverageLatency() time.Duration {
	return c.stats.averageLatency()
}
