package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptConn is a connection whose read side blocks until the test kills
// it, recording everything written.
type scriptConn struct {
	mu     sync.Mutex
	writes []any
	dead   chan struct{}
	once   sync.Once
}

func newScriptConn() *scriptConn {
	return &scriptConn{dead: make(chan struct{})}
}

func (c *scriptConn) WriteJSON(v any) error {
	c.mu.Lock()
	c.writes = append(c.writes, v)
	c.mu.Unlock()
	return nil
}

func (c *scriptConn) ReadMessage() (int, []byte, error) {
	<-c.dead
	return 0, nil, errors.New("connection reset")
}

func (c *scriptConn) Close() error {
	c.kill()
	return nil
}

func (c *scriptConn) kill() {
	c.once.Do(func() { close(c.dead) })
}

func (c *scriptConn) written() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.writes...)
}

func (c *scriptConn) joinRequests() []map[string]string {
	var out []map[string]string
	for _, w := range c.written() {
		if m, ok := w.(map[string]string); ok && m["type"] == "join-request" {
			out = append(out, m)
		}
	}
	return out
}

// stateRecorder collects state transitions and lets tests wait for one.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
	ch     chan State
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan State, 32)}
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *stateRecorder) waitFor(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestNextWait(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 10, want: time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextWait(base, max, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	dials := 0
	s := NewSupervisor(Options{
		URL: "ws://test",
		Dial: func(ctx context.Context, url string) (Conn, error) {
			dials++
			return nil, errors.New("refused")
		},
		BaseWait:    time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		MaxAttempts: 3,
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, dials, "bounded attempts, no infinite retry")
	assert.Equal(t, Disconnected, s.State(), "terminal state is surfaced")
}

func TestAutoRejoinAfterReconnect(t *testing.T) {
	conns := []*scriptConn{newScriptConn(), newScriptConn()}
	var (
		mu   sync.Mutex
		next int
	)
	rec := newStateRecorder()

	s := NewSupervisor(Options{
		URL: "ws://test",
		Dial: func(ctx context.Context, url string) (Conn, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(conns) {
				return nil, errors.New("no more connections scripted")
			}
			c := conns[next]
			next++
			return c, nil
		},
		BaseWait:    time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		MaxAttempts: 3,
		OnState:     rec.record,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	rec.waitFor(t, Connected)
	require.NoError(t, s.Join("r1", "alice"))
	require.NotEmpty(t, conns[0].joinRequests())

	// Drop the transport; the supervisor must reconnect and replay the
	// cached identity without any help from the application.
	conns[0].kill()
	rec.waitFor(t, Reconnecting)
	rec.waitFor(t, Connected)

	require.Eventually(t, func() bool {
		return len(conns[1].joinRequests()) == 1
	}, 2*time.Second, 5*time.Millisecond, "cached identity must be replayed")
	jr := conns[1].joinRequests()[0]
	assert.Equal(t, "r1", jr["roomId"])
	assert.Equal(t, "alice", jr["username"])

	cancel()
	conns[1].kill()
	require.NoError(t, <-done)

	states := rec.all()
	assert.Contains(t, states, Connecting)
	assert.Contains(t, states, Reconnecting)
	assert.Equal(t, Disconnected, states[len(states)-1])
}

func TestLeaveClearsCachedIdentity(t *testing.T) {
	conn := newScriptConn()
	s := NewSupervisor(Options{
		URL:  "ws://test",
		Dial: func(ctx context.Context, url string) (Conn, error) { return conn, nil },
	})
	rec := newStateRecorder()
	s.opts.OnState = rec.record

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	rec.waitFor(t, Connected)

	require.NoError(t, s.Join("r1", "alice"))
	require.NoError(t, s.Leave())
	assert.Nil(t, s.cachedIdentity(), "leave must clear the replay identity")

	cancel()
	conn.kill()
	require.NoError(t, <-done)
}

func TestJoinWhileDisconnected(t *testing.T) {
	s := NewSupervisor(Options{URL: "ws://test"})

	err := s.Join("r1", "alice")
	assert.ErrorIs(t, err, ErrNotConnected)

	// The identity is cached anyway so the next connect can use it.
	id := s.cachedIdentity()
	require.NotNil(t, id)
	assert.Equal(t, "r1", id.RoomID)
	assert.Equal(t, "alice", id.Username)
}

func TestSendWhileDisconnected(t *testing.T) {
	s := NewSupervisor(Options{URL: "ws://test"})
	assert.ErrorIs(t, s.Send(map[string]string{"type": "ping"}), ErrNotConnected)
}
