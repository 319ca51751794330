// Package client implements the consumer-side session supervisor: it
// keeps one signal connection alive, reconnecting with capped exponential
// backoff and re-joining the cached room after a transport loss.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

var (
	ErrNotConnected     = errors.New("not connected")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// Identity is the cached (room, username) pair replayed after a reconnect.
type Identity struct {
	RoomID   string
	Username string
}

// Conn is the minimal transport surface the supervisor drives. It is
// satisfied by *websocket.Conn.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Options struct {
	URL         string
	Dial        DialFunc      // defaults to a gorilla dialer
	BaseWait    time.Duration // first retry delay, doubles per attempt
	MaxWait     time.Duration // delay cap
	MaxAttempts int           // consecutive failures before giving up

	OnState func(State) // optional state change hook
	OnEvent func([]byte)
}

type Supervisor struct {
	opts Options

	mu       sync.Mutex
	state    State
	conn     Conn
	identity *Identity
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}
	if opts.BaseWait <= 0 {
		opts.BaseWait = 500 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &Supervisor{opts: opts, state: Disconnected}
}

// Run drives the connection until ctx is canceled or the retry budget is
// spent. It returns nil on cancellation and ErrRetriesExhausted when the
// supervisor lands in terminal Disconnected.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		resumed := s.State() == Reconnecting
		if !resumed {
			s.setState(Connecting)
		}

		conn, err := s.dialWithBackoff(ctx)
		if err != nil {
			s.setState(Disconnected)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setState(Connected)
		log.Info().Str("module", "client").Str("url", s.opts.URL).Msg("connected")

		// Entering Connected replays the cached identity, whether this is
		// the first connect or a resume; the server's idempotent join
		// makes the replay safe.
		if id := s.cachedIdentity(); id != nil {
			if err := s.Join(id.RoomID, id.Username); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("auto re-join failed")
			}
		}

		err = s.readLoop(ctx, conn)
		_ = conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			s.setState(Disconnected)
			return nil
		}
		log.Warn().Err(err).Str("module", "client").Msg("connection lost, reconnecting")
		s.setState(Reconnecting)
	}
}

// Join caches the identity and submits a join-request if a connection is
// currently up. The cache survives transport loss.
func (s *Supervisor) Join(roomID, username string) error {
	s.mu.Lock()
	s.identity = &Identity{RoomID: roomID, Username: username}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(map[string]string{
		"type":     "join-request",
		"roomId":   roomID,
		"username": username,
	})
}

// Leave clears the cached identity so a later reconnect does not re-enter
// the room, and tells the server if reachable.
func (s *Supervisor) Leave() error {
	s.mu.Lock()
	s.identity = nil
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(map[string]string{"type": "leave-room"})
}

// Send submits an arbitrary event on the live connection.
func (s *Supervisor) Send(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(v)
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) cachedIdentity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func (s *Supervisor) readLoop(ctx context.Context, conn Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if s.opts.OnEvent != nil {
			s.opts.OnEvent(data)
		}
	}
}

// dialWithBackoff tries the dialer up to MaxAttempts times, doubling the
// delay between consecutive failures up to MaxWait.
func (s *Supervisor) dialWithBackoff(ctx context.Context) (Conn, error) {
	var lastErr error
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := nextWait(s.opts.BaseWait, s.opts.MaxWait, attempt)
			log.Info().Str("module", "client").Int("attempt", attempt).Dur("wait", wait).Msg("retrying connection")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		conn, err := s.opts.Dial(ctx, s.opts.URL)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "client").Int("attempt", attempt+1).Msg("dial failed")
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// nextWait is the delay before retry number attempt (attempt >= 1).
func nextWait(base, max time.Duration, attempt int) time.Duration {
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= max {
			return max
		}
	}
	if wait > max {
		return max
	}
	return wait
}
