package stream

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimworks/golden-cli/internal/session"
)

func TestNextDelayDoublesAndCaps(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, nextDelay(attempt, initial, max, 0), "attempt %d", attempt)
	}
}

func TestNextDelayJitterBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := nextDelay(1, time.Second, 30*time.Second, 250*time.Millisecond)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second+250*time.Millisecond)
	}
}

func TestDecodeEvent(t *testing.T) {
	evt, ok := decodeEvent([]byte(`{"type":"job.update","jobId":"j1"}`))
	require.True(t, ok)
	assert.Equal(t, "job.update", evt.Type)
	assert.JSONEq(t, `{"type":"job.update","jobId":"j1"}`, string(evt.Data))

	_, ok = decodeEvent([]byte(`not json`))
	assert.False(t, ok)

	_, ok = decodeEvent([]byte(`{"jobId":"j1"}`))
	assert.False(t, ok)
}

// fakeConn feeds scripted messages, then blocks until closed.
type fakeConn struct {
	messages [][]byte
	idx      int
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn(messages ...[]byte) *fakeConn {
	return &fakeConn{messages: messages, closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if c.idx < len(c.messages) {
		msg := c.messages[c.idx]
		c.idx++
		return 1, msg, nil
	}
	<-c.closed
	return 0, nil, eris.New("use of closed connection")
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []Conn
	errs    []error
	factory func() Conn
	urls    []string
	calls   int
}

func (d *fakeDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, urlStr)
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i < len(d.conns) {
		return d.conns[i], nil
	}
	if d.factory != nil {
		return d.factory(), nil
	}
	return nil, eris.New("no more connections scripted")
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestClientDeliversEvents(t *testing.T) {
	conn := newFakeConn(
		[]byte(`{"type":"job.start"}`),
		[]byte(`garbage`),
		[]byte(`{"type":"job.done"}`),
	)
	dialer := &fakeDialer{conns: []Conn{conn}}

	var mu sync.Mutex
	var types []string
	client := New(Config{
		URL:    "ws://example/stream",
		Tokens: session.StaticTokenSource("tok-abc"),
		Dialer: dialer,
		OnEvent: func(evt Event) {
			mu.Lock()
			types = append(types, evt.Type)
			mu.Unlock()
		},
	})

	require.NoError(t, client.Start(context.Background()))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 2
	})
	client.Close()

	mu.Lock()
	assert.Equal(t, []string{"job.start", "job.done"}, types)
	mu.Unlock()
	assert.Equal(t, StatusDisabled, client.Status())

	// Fresh token appended as query parameter on connect.
	require.Len(t, dialer.urls, 1)
	assert.True(t, strings.Contains(dialer.urls[0], "token=tok-abc"))
}

func TestClientReconnectsAfterReadFailure(t *testing.T) {
	first := newFakeConn([]byte(`{"type":"one"}`))
	second := newFakeConn([]byte(`{"type":"two"}`))
	dialer := &fakeDialer{conns: []Conn{first, second}}

	var mu sync.Mutex
	var types []string
	client := New(Config{
		URL:            "ws://example/stream",
		Dialer:         dialer,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		OnEvent: func(evt Event) {
			mu.Lock()
			types = append(types, evt.Type)
			mu.Unlock()
		},
	})

	require.NoError(t, client.Start(context.Background()))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 1
	})
	first.Close()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 2
	})
	client.Close()

	mu.Lock()
	assert.Equal(t, []string{"one", "two"}, types)
	mu.Unlock()
}

func TestDroppedConnectionWaitsBeforeRedial(t *testing.T) {
	// Every dial succeeds but the channel drops on the first read. Each
	// reconnect must still wait out the delay floor instead of spinning.
	dialer := &fakeDialer{factory: func() Conn {
		conn := newFakeConn()
		conn.Close()
		return conn
	}}

	client := New(Config{
		URL:            "ws://example/stream",
		Dialer:         dialer,
		MaxAttempts:    2,
		InitialBackoff: 75 * time.Millisecond,
		MaxBackoff:     75 * time.Millisecond,
	})

	started := time.Now()
	require.NoError(t, client.Start(context.Background()))
	defer client.Close()

	waitFor(t, func() bool { return dialer.dialCount() >= 4 })
	elapsed := time.Since(started)

	// Three waits separate four dials, each at least the 75ms floor.
	assert.GreaterOrEqual(t, elapsed, 225*time.Millisecond,
		"redial after a dropped connection must honor the backoff delay")

	// Each successful open resets the failure budget, so repeated drops never
	// exhaust it.
	assert.NotEqual(t, StatusUnavailable, client.Status())
}

func TestClientGivesUpAfterAttemptBudget(t *testing.T) {
	dialer := &fakeDialer{}

	statusCh := make(chan Status, 32)
	client := New(Config{
		URL:            "ws://example/stream",
		Dialer:         dialer,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		OnStatus: func(s Status) {
			statusCh <- s
		},
	})

	require.NoError(t, client.Start(context.Background()))

	waitFor(t, func() bool { return client.Status() == StatusUnavailable })
	assert.Equal(t, 3, dialer.dialCount())
	assert.ErrorIs(t, client.LastErr(), ErrStreamUnavailable)
}

func TestClientCloseStopsReconnects(t *testing.T) {
	dialer := &fakeDialer{errs: []error{
		eris.New("down"), eris.New("down"), eris.New("down"),
		eris.New("down"), eris.New("down"), eris.New("down"),
	}}

	client := New(Config{
		URL:            "ws://example/stream",
		Dialer:         dialer,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	require.NoError(t, client.Start(context.Background()))
	waitFor(t, func() bool { return dialer.dialCount() >= 1 })
	client.Close()

	count := dialer.dialCount()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, count, dialer.dialCount())
	assert.Equal(t, StatusDisabled, client.Status())
}

func TestClientStartTwiceFails(t *testing.T) {
	dialer := &fakeDialer{conns: []Conn{newFakeConn()}}
	client := New(Config{URL: "ws://example/stream", Dialer: dialer})
	require.NoError(t, client.Start(context.Background()))
	assert.Error(t, client.Start(context.Background()))
	client.Close()
}
