package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studo/models"
	"studo/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeBackend persists through a store.Memory and lets tests fail or stall
// individual calls.
type fakeBackend struct {
	mu        sync.Mutex
	selfEmail string
	users     []UserInfo
	messages  *store.Memory
	clock     *fakeClock

	sendErr   error
	sendCount int
	onSend    func()
	onList    func(peer string)
}

func newFakeBackend(clock *fakeClock, users ...UserInfo) *fakeBackend {
	return &fakeBackend{
		users:    users,
		messages: store.NewMemory(),
		clock:    clock,
	}
}

func (b *fakeBackend) ListUsers(ctx context.Context) ([]UserInfo, error) {
	return b.users, nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, peer string) ([]models.Message, error) {
	if b.onList != nil {
		b.onList(peer)
	}
	return b.messages.ListBetween(ctx, b.self(), peer)
}

func (b *fakeBackend) self() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfEmail
}

func (b *fakeBackend) SendMessage(ctx context.Context, receiver, content, token string) (models.Message, error) {
	b.mu.Lock()
	b.sendCount++
	onSend := b.onSend
	err := b.sendErr
	b.mu.Unlock()

	if onSend != nil {
		onSend()
	}
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		Sender:    b.self(),
		Receiver:  receiver,
		Content:   content,
		Timestamp: models.NowMillis(b.clock.Now()),
		Token:     token,
	}
	if err := b.messages.Insert(ctx, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (b *fakeBackend) sends() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendCount
}

func newTestSession(t *testing.T) (*Session, *fakeBackend, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	backend := newFakeBackend(clock,
		UserInfo{Email: "b@x.com", Name: "Bea", Role: "student"},
		UserInfo{Email: "c@x.com", Name: "Cid", Role: "instructor"},
	)
	backend.selfEmail = "a@x.com"

	s := NewSession("a@x.com", backend, WithClock(clock.Now))
	require.NoError(t, s.Start(context.Background()))
	return s, backend, clock
}

func TestStartBuildsPeerList(t *testing.T) {
	s, _, _ := newTestSession(t)

	peers := s.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "b@x.com", peers[0].Email)
	assert.Equal(t, "Bea", peers[0].Name)
	assert.Equal(t, "student", peers[0].Role)
	assert.Zero(t, peers[0].Unread)
	assert.Equal(t, StateIdle, s.State())
}

func TestOpenLoadsHistoryAndGoesLive(t *testing.T) {
	s, backend, _ := newTestSession(t)

	seed := models.Message{Sender: "b@x.com", Receiver: "a@x.com", Content: "earlier", Timestamp: "1"}
	require.NoError(t, backend.messages.Insert(context.Background(), &seed))

	require.NoError(t, s.Open(context.Background(), "b@x.com"))
	assert.Equal(t, StateLive, s.State())
	assert.Equal(t, "b@x.com", s.Selected())

	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "earlier", conv[0].Content)

	s.Close()
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Conversation())
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	s, backend, _ := newTestSession(t)
	require.NoError(t, s.Open(context.Background(), "b@x.com"))

	// While the send is in flight, exactly one temp entry is visible.
	backend.onSend = func() {
		conv := s.Conversation()
		require.Len(t, conv, 1)
		assert.True(t, strings.HasPrefix(conv[0].ID, "temp-"))
		assert.Equal(t, "hello", conv[0].Content)
	}

	confirmed, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(confirmed.ID, "temp-"))

	conv := s.Conversation()
	require.Len(t, conv, 1, "temp entry must be replaced, not duplicated")
	assert.Equal(t, confirmed.ID, conv[0].ID)
	assert.Equal(t, "hello", conv[0].Content)
}

func TestSendDebounceWithinWindow(t *testing.T) {
	s, backend, clock := newTestSession(t)
	require.NoError(t, s.Open(context.Background(), "b@x.com"))

	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrDuplicateSend)
	assert.Equal(t, 1, backend.sends(), "double submit must hit the server once")

	stored, err := backend.messages.ListBetween(context.Background(), "a@x.com", "b@x.com")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// Different content passes immediately, same content passes after the
	// window.
	_, err = s.Send(context.Background(), "bye")
	require.NoError(t, err)

	clock.Advance(2001 * time.Millisecond)
	_, err = s.Send(context.Background(), "bye")
	require.NoError(t, err)
	assert.Equal(t, 3, backend.sends())
}

func TestSendRollbackOnStorageFailure(t *testing.T) {
	s, backend, _ := newTestSession(t)
	require.NoError(t, s.Open(context.Background(), "b@x.com"))

	backend.sendErr = errors.New("storage unreachable")

	_, err := s.Send(context.Background(), "doomed")
	require.Error(t, err)

	assert.Empty(t, s.Conversation(), "optimistic entry must be rolled back")

	notices := s.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Kind)
}

func TestSendValidation(t *testing.T) {
	s, backend, _ := newTestSession(t)

	_, err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoPeer)

	require.NoError(t, s.Open(context.Background(), "b@x.com"))
	_, err = s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	assert.Zero(t, backend.sends(), "validation failures must not hit the network")
}

func TestReceiveRedeliveryDuplicateSuppression(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Open(context.Background(), "b@x.com"))

	msg := models.Message{
		ID:        "64f0000000000000000000aa",
		Sender:    "b@x.com",
		Receiver:  "a@x.com",
		Content:   "ping",
		Timestamp: models.NowMillis(newFakeClock().Now()),
	}

	s.Receive(msg)
	s.Receive(msg)
	assert.Len(t, s.Conversation(), 1, "redelivered message must appear once")

	// Same sender+content with a different ID within 5s is still the same
	// logical message.
	near := msg
	near.ID = "64f0000000000000000000ab"
	near.Timestamp = models.NowMillis(newFakeClock().Now().Add(3 * time.Second))
	s.Receive(near)
	assert.Len(t, s.Conversation(), 1)

	// Outside the window it is a genuinely repeated text.
	far := msg
	far.ID = "64f0000000000000000000ac"
	far.Timestamp = models.NowMillis(newFakeClock().Now().Add(10 * time.Second))
	s.Receive(far)
	assert.Len(t, s.Conversation(), 2)
}

func TestSelfEchoSuppression(t *testing.T) {
	s, _, clock := newTestSession(t)
	require.NoError(t, s.Open(context.Background(), "b@x.com"))

	confirmed, err := s.Send(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, s.Conversation(), 1)

	// Echo of our own send arriving through the subscription: token match.
	s.Receive(confirmed)
	assert.Len(t, s.Conversation(), 1, "own echo must not duplicate the entry")

	// Tokenless echo inside the 2s window.
	echo := models.Message{
		ID:        "64f0000000000000000000ba",
		Sender:    "a@x.com",
		Receiver:  "b@x.com",
		Content:   "test",
		Timestamp: models.NowMillis(clock.Now()),
	}
	s.Receive(echo)
	assert.Len(t, s.Conversation(), 1)

	// A message from self with other content is not an echo; it came from
	// another device and belongs in the conversation.
	other := models.Message{
		ID:        "64f0000000000000000000bb",
		Sender:    "a@x.com",
		Receiver:  "b@x.com",
		Content:   "from my laptop",
		Timestamp: models.NowMillis(clock.Now()),
	}
	s.Receive(other)
	assert.Len(t, s.Conversation(), 2)
}

func TestUnreadAccounting(t *testing.T) {
	s, _, clock := newTestSession(t)

	for i := 0; i < 3; i++ {
		s.Receive(models.Message{
			ID:        models.NowMillis(clock.Now()) + "-" + string(rune('a'+i)),
			Sender:    "c@x.com",
			Receiver:  "a@x.com",
			Content:   "unseen " + string(rune('a'+i)),
			Timestamp: models.NowMillis(clock.Now()),
		})
		clock.Advance(10 * time.Second)
	}

	assert.Equal(t, 3, s.Unread("c@x.com"))

	peers := s.Peers()
	require.NotEmpty(t, peers)
	assert.Equal(t, "c@x.com", peers[0].Email, "peer with new messages floats to the top")

	require.NoError(t, s.Open(context.Background(), "c@x.com"))
	assert.Zero(t, s.Unread("c@x.com"), "opening the conversation clears the counter")
}

func TestReceiveFromUnknownPeerCreatesEntry(t *testing.T) {
	s, _, clock := newTestSession(t)

	s.Receive(models.Message{
		ID:        "64f0000000000000000000ca",
		Sender:    "new@x.com",
		Receiver:  "a@x.com",
		Content:   "hello there",
		Timestamp: models.NowMillis(clock.Now()),
	})

	peers := s.Peers()
	require.Len(t, peers, 3)
	assert.Equal(t, "new@x.com", peers[0].Email)
	assert.Equal(t, 1, peers[0].Unread)
}

func TestNoticesExpire(t *testing.T) {
	s, _, clock := newTestSession(t)

	s.Receive(models.Message{
		ID:        "64f0000000000000000000da",
		Sender:    "b@x.com",
		Receiver:  "a@x.com",
		Content:   "pssst",
		Timestamp: models.NowMillis(clock.Now()),
	})

	notices := s.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeMessage, notices[0].Kind)
	assert.Equal(t, "b@x.com", notices[0].From)

	clock.Advance(5001 * time.Millisecond)
	assert.Empty(t, s.Notices(), "notices dismiss themselves after the delay")
}

func TestStaleFetchDiscardedOnPeerSwitch(t *testing.T) {
	s, backend, _ := newTestSession(t)

	seedB := models.Message{Sender: "b@x.com", Receiver: "a@x.com", Content: "from b", Timestamp: "1"}
	seedC := models.Message{Sender: "c@x.com", Receiver: "a@x.com", Content: "from c", Timestamp: "2"}
	require.NoError(t, backend.messages.Insert(context.Background(), &seedB))
	require.NoError(t, backend.messages.Insert(context.Background(), &seedC))

	block := make(chan struct{})
	release := make(chan struct{})
	backend.onList = func(peer string) {
		if peer == "b@x.com" {
			close(block)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), "b@x.com") }()

	<-block
	backend.onList = nil
	require.NoError(t, s.Open(context.Background(), "c@x.com"))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, "c@x.com", s.Selected())
	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "from c", conv[0].Content, "late result for the deselected peer must be discarded")
}

// End-to-end over the in-memory store: A sends, B's session receives via a
// simulated fan-out, unread and history line up.
func TestEndToEndSendAndReceive(t *testing.T) {
	clock := newFakeClock()
	messages := store.NewMemory()

	backendA := newFakeBackend(clock, UserInfo{Email: "b@x.com", Name: "Bea", Role: "student"})
	backendA.selfEmail = "a@x.com"
	backendA.messages = messages

	backendB := newFakeBackend(clock, UserInfo{Email: "a@x.com", Name: "Ana", Role: "instructor"})
	backendB.selfEmail = "b@x.com"
	backendB.messages = messages

	sessionA := NewSession("a@x.com", backendA, WithClock(clock.Now))
	sessionB := NewSession("b@x.com", backendB, WithClock(clock.Now))
	require.NoError(t, sessionA.Start(context.Background()))
	require.NoError(t, sessionB.Start(context.Background()))

	require.NoError(t, sessionA.Open(context.Background(), "b@x.com"))
	sent, err := sessionA.Send(context.Background(), "Meeting at 3pm")
	require.NoError(t, err)

	// The hub would deliver the stored copy to B only.
	sessionB.Receive(sent)

	stored, err := messages.ListBetween(context.Background(), "a@x.com", "b@x.com")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Meeting at 3pm", stored[0].Content)

	assert.Equal(t, 1, sessionB.Unread("a@x.com"), "B is not looking at A's conversation")

	require.NoError(t, sessionB.Open(context.Background(), "a@x.com"))
	assert.Zero(t, sessionB.Unread("a@x.com"))
	conv := sessionB.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, sent.ID, conv[0].ID)

	// A's own list shows exactly one copy as well.
	convA := sessionA.Conversation()
	require.Len(t, convA, 1)
	assert.Equal(t, sent.ID, convA[0].ID)
}
