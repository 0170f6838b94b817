package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studo/models"
	"studo/ws"
)

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	max := 8 * time.Second

	cur := time.Second
	cur = nextBackoff(cur, max)
	assert.Equal(t, 2*time.Second, cur)
	cur = nextBackoff(cur, max)
	assert.Equal(t, 4*time.Second, cur)
	cur = nextBackoff(cur, max)
	assert.Equal(t, 8*time.Second, cur)
	cur = nextBackoff(cur, max)
	assert.Equal(t, 8*time.Second, cur, "backoff must stay capped")
}

func TestSubscriberRetriesWithBackoff(t *testing.T) {
	var mu sync.Mutex
	var states []ConnState
	dials := 0

	s := NewSubscriber("ws://unreachable", "tok",
		WithBackoff(time.Millisecond, 4*time.Millisecond),
		WithStateFunc(func(st ConnState) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		}),
	)
	s.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 4
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	for _, st := range states {
		assert.Equal(t, Reconnecting, st)
	}
}

func TestSubscriberReceivesAndReconnects(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run()

	auth := func(token string) (string, error) { return token, nil }
	srv := httptest.NewServer(http.HandlerFunc(ws.Handler(hub, auth)))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var mu sync.Mutex
	var states []ConnState
	sub := NewSubscriber(wsURL, "b@x.com",
		WithBackoff(time.Millisecond, 10*time.Millisecond),
		WithStateFunc(func(st ConnState) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	require.Eventually(t, func() bool { return hub.Connected("b@x.com") }, time.Second, 5*time.Millisecond)

	hub.Publish(models.Message{ID: "1", Sender: "a@x.com", Receiver: "b@x.com", Content: "first", Timestamp: "1"})

	select {
	case got := <-sub.Events():
		assert.Equal(t, "first", got.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first event")
	}

	// Kill every server-side connection; the subscriber must come back on
	// its own and keep the same Events channel. Publishes may still land on
	// the dying connection, so repeat until one gets through.
	srv.CloseClientConnections()

	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	var got models.Message
recv:
	for {
		select {
		case got = <-sub.Events():
			break recv
		case <-ticker.C:
			hub.Publish(models.Message{ID: "2", Sender: "a@x.com", Receiver: "b@x.com", Content: "second", Timestamp: "2"})
		case <-deadline:
			t.Fatal("timed out waiting for event after reconnect")
		}
	}
	assert.Equal(t, "second", got.Content)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, Connected)
	assert.Contains(t, states, Disconnected)
}
