// Package stream maintains a resilient websocket subscription to the PIM
// event stream (extraction progress, queue updates, promotion events).
package stream

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/session"
)

// Status is the lifecycle state of the stream connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusDisabled means the client was closed on purpose and will not
	// reconnect.
	StatusDisabled Status = "disabled"
	// StatusUnavailable means the retry budget is exhausted. Recovery requires
	// an explicit Reset.
	StatusUnavailable Status = "unavailable"
)

// ErrStreamUnavailable is reported once the reconnect budget runs out.
var ErrStreamUnavailable = eris.New("stream: server unavailable after repeated reconnect attempts")

// Event is one message off the stream. Data holds the raw payload so callers
// decode per Type.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// Conn is the subset of *websocket.Conn the client needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream connections. *websocket.Dialer satisfies it through
// wsDialer.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

func (w wsDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	conn, resp, err := w.d.DialContext(ctx, urlStr, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config sets up a stream client.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// Tokens mints the auth token appended to each connect. A fresh token is
	// fetched for every attempt so an expired one never poisons a reconnect.
	Tokens session.TokenSource

	// OnEvent receives each decoded message. Called from the client's reader
	// goroutine.
	OnEvent func(Event)

	// OnStatus observes lifecycle transitions. Optional.
	OnStatus func(Status)

	// MaxAttempts caps consecutive failed connects before the client gives up.
	// Default: 10.
	MaxAttempts int

	// InitialBackoff is the delay before the first reconnect. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Default: 30s.
	MaxBackoff time.Duration

	// JitterMax is the maximum random addition to each delay. Default: 250ms.
	JitterMax time.Duration

	// Dialer overrides the websocket dialer. Default: gorilla's DefaultDialer.
	Dialer Dialer
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.JitterMax <= 0 {
		c.JitterMax = 250 * time.Millisecond
	}
	if c.Dialer == nil {
		c.Dialer = wsDialer{d: websocket.DefaultDialer}
	}
}

// Client keeps one logical subscription alive across disconnects. Events from
// a superseded connection are dropped, so a slow old reader can never
// interleave with the current one.
type Client struct {
	cfg Config

	mu      sync.Mutex
	status  Status
	epoch   uint64
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// New creates a stream client. Call Start to connect.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, status: StatusDisconnected}
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastErr returns the most recent connection error, if any.
func (c *Client) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}

// Start begins connecting and returns immediately. The client reconnects on
// failure until the attempt budget is exhausted, the context is canceled, or
// Close is called.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return eris.New("stream: client already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(runCtx)
	}()
	return nil
}

// Close tears the connection down and disables reconnects.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.epoch++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	c.setStatus(StatusDisabled)
}

// Reset clears an unavailable state so a later Start can try again.
func (c *Client) Reset() {
	c.mu.Lock()
	c.lastErr = nil
	c.done = nil
	c.cancel = nil
	c.status = StatusDisconnected
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected)
			return
		}

		c.setStatus(StatusConnecting)
		conn, epoch, err := c.connect(ctx)
		if err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()

			attempt++
			if attempt >= c.cfg.MaxAttempts {
				zap.L().Error("stream unavailable, giving up",
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
				c.mu.Lock()
				c.lastErr = ErrStreamUnavailable
				c.mu.Unlock()
				c.setStatus(StatusUnavailable)
				return
			}
			if !c.scheduleReconnect(ctx, attempt, err) {
				return
			}
			continue
		}

		// Successful open resets the backoff to its floor.
		attempt = 0
		c.setStatus(StatusConnected)
		c.readLoop(ctx, conn, epoch)

		c.mu.Lock()
		stale := epoch != c.epoch
		c.mu.Unlock()
		if stale || ctx.Err() != nil {
			c.setStatus(StatusDisconnected)
			return
		}

		// A dropped connection re-enters the dial path through the same
		// scheduler as a failed dial, never immediately.
		attempt++
		if !c.scheduleReconnect(ctx, attempt, c.LastErr()) {
			return
		}
	}
}

// scheduleReconnect waits out the backoff delay for the given consecutive
// failure count. Returns false when the context ended during the wait.
func (c *Client) scheduleReconnect(ctx context.Context, attempt int, cause error) bool {
	delay := nextDelay(attempt-1, c.cfg.InitialBackoff, c.cfg.MaxBackoff, c.cfg.JitterMax)
	zap.L().Warn("stream disconnected, scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
	c.setStatus(StatusReconnecting)
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		c.setStatus(StatusDisconnected)
		return false
	case <-timer.C:
		return true
	}
}

// connect mints a fresh token, dials, and registers the connection under a
// new epoch.
func (c *Client) connect(ctx context.Context) (Conn, uint64, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, 0, eris.Wrap(err, "stream: parse url")
	}
	if c.cfg.Tokens != nil {
		token, err := c.cfg.Tokens.Token(ctx)
		if err != nil {
			return nil, 0, eris.Wrap(err, "stream: fetch token")
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "stream: dial")
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.epoch++
	epoch := c.epoch
	c.conn = conn
	c.mu.Unlock()
	return conn, epoch, nil
}

func (c *Client) readLoop(ctx context.Context, conn Conn, epoch uint64) {
	defer conn.Close()
	for {
		_, payload, err := conn.ReadMessage()

		c.mu.Lock()
		current := epoch == c.epoch
		c.mu.Unlock()
		if !current {
			return
		}

		if err != nil {
			if ctx.Err() == nil {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
				zap.L().Warn("stream read failed", zap.Error(err))
			}
			return
		}

		evt, ok := decodeEvent(payload)
		if !ok {
			zap.L().Debug("stream: dropping undecodable message", zap.Int("bytes", len(payload)))
			continue
		}
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(evt)
		}
	}
}

func decodeEvent(payload []byte) (Event, bool) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Type == "" {
		return Event{}, false
	}
	return Event{Type: envelope.Type, Data: json.RawMessage(payload)}, true
}

// nextDelay computes the reconnect delay for a zero-based failed attempt:
// initial doubled per attempt, capped at max, plus up to jitterMax of random
// spread.
func nextDelay(attempt int, initial, max, jitterMax time.Duration) time.Duration {
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	if jitterMax > 0 {
		delay += time.Duration(rand.Int64N(int64(jitterMax) + 1))
	}
	return delay
}
