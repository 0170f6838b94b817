package client

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"studo/models"
	"studo/ws"
)

type ConnState int

const (
	Connected ConnState = iota
	Disconnected
	Reconnecting
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// Subscriber keeps one logical message stream alive across websocket
// reconnects. The session only ever sees the Events channel; drops and
// backoff stay in here.
type Subscriber struct {
	url     string
	events  chan models.Message
	onState func(ConnState)

	dial       dialFunc
	minBackoff time.Duration
	maxBackoff time.Duration
}

type SubscriberOption func(*Subscriber)

// WithStateFunc registers a callback for connection state changes, e.g. a
// "disconnected" indicator in the UI.
func WithStateFunc(fn func(ConnState)) SubscriberOption {
	return func(s *Subscriber) { s.onState = fn }
}

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(min, max time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.minBackoff = min
		s.maxBackoff = max
	}
}

// NewSubscriber prepares a subscriber for the given websocket URL; token is
// the caller's JWT, carried as a query parameter.
func NewSubscriber(wsURL, token string, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url:        wsURL + "?token=" + token,
		events:     make(chan models.Message, 64),
		onState:    func(ConnState) {},
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events is the logical message stream, valid across reconnects.
func (s *Subscriber) Events() <-chan models.Message {
	return s.events
}

// Run connects and reads until ctx is cancelled, reconnecting with capped
// exponential backoff. Blocks; run it in its own goroutine.
func (s *Subscriber) Run(ctx context.Context) {
	backoff := s.minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx, s.url)
		if err != nil {
			s.onState(Reconnecting)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.maxBackoff)
			continue
		}

		s.onState(Connected)
		backoff = s.minBackoff

		s.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		s.onState(Disconnected)
	}
}

// readLoop drains one connection until it breaks or ctx ends.
func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var env ws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Type != ws.FrameMessage {
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			log.Printf("subscriber: bad payload: %v", err)
			continue
		}

		select {
		case s.events <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
