// Package client implements the chat-side state of a signed-in user: the
// peer list with unread counters, the open conversation, optimistic sends
// and the merging of subscription events. All reconciliation policy lives
// here; the server only persists and fans out.
package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studo/models"
)

type State int

const (
	// StateIdle: no peer selected. The subscription stays active and keeps
	// feeding unread counters.
	StateIdle State = iota
	// StateLoaded: a peer is selected and its history fetch is in flight.
	StateLoaded
	// StateLive: the authoritative history is installed and incoming events
	// are merged without re-fetching.
	StateLive
)

const (
	// sendDebounce absorbs accidental double submits of identical content.
	sendDebounce = 2000 * time.Millisecond
	// echoWindow is the fallback self-echo heuristic for events without an
	// idempotency token.
	echoWindow = 2000 * time.Millisecond
	// redeliveryWindow bounds the sender+content duplicate guard against
	// at-least-once redelivery.
	redeliveryWindow = 5000 * time.Millisecond
	// noticeTTL is how long a transient notification stays visible.
	noticeTTL = 5000 * time.Millisecond
	// tokenRetention bounds the memory of recently sent idempotency tokens.
	tokenRetention = time.Minute
)

var (
	ErrNoPeer        = errors.New("no peer selected")
	ErrEmptyContent  = errors.New("message content is empty")
	ErrDuplicateSend = errors.New("identical message sent moments ago")
)

// Backend is the server surface the session needs. *API implements it over
// HTTP; tests implement it in memory.
type Backend interface {
	ListUsers(ctx context.Context) ([]UserInfo, error)
	ListMessages(ctx context.Context, peer string) ([]models.Message, error)
	SendMessage(ctx context.Context, receiver, content, token string) (models.Message, error)
}

// UserInfo is one entry of the listUsers result.
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Peer is one sidebar entry: another user the session's owner can chat with.
type Peer struct {
	Email  string
	Name   string
	Role   string
	Unread int
}

const (
	NoticeMessage = "message"
	NoticeError   = "error"
)

// Notice is a transient notification; it disappears once ExpiresAt passes.
type Notice struct {
	Kind      string
	From      string
	Content   string
	ExpiresAt time.Time
}

// Session is single-writer client state. Methods are safe for use from the
// goroutine driving the UI and the goroutine draining subscription events.
type Session struct {
	mu      sync.Mutex
	self    string
	backend Backend
	now     func() time.Time

	state        State
	peers        []*Peer
	selected     string
	conversation []models.Message

	// generation invalidates in-flight history fetches when the selected
	// peer changes.
	generation uint64

	lastSentContent string
	lastSentAt      time.Time
	sentTokens      map[string]time.Time

	notices []Notice
}

type Option func(*Session)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func NewSession(self string, backend Backend, opts ...Option) *Session {
	s := &Session{
		self:       self,
		backend:    backend,
		now:        time.Now,
		state:      StateIdle,
		sentTokens: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the peer list from the full user list. Called once after
// sign-in; the list is mutated incrementally afterwards.
func (s *Session) Start(ctx context.Context) error {
	users, err := s.backend.ListUsers(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.peers = s.peers[:0]
	for _, u := range users {
		if u.Email == s.self {
			continue
		}
		s.peers = append(s.peers, &Peer{Email: u.Email, Name: u.Name, Role: u.Role})
	}
	return nil
}

// Open selects a peer: the conversation history is fetched and replaces
// local state entirely, and the peer's unread counter resets. A second Open
// issued while the fetch is in flight wins; the late result is discarded.
func (s *Session) Open(ctx context.Context, peer string) error {
	if peer == "" {
		return ErrNoPeer
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.selected = peer
	s.state = StateLoaded
	s.conversation = nil
	if p := s.peer(peer); p != nil {
		p.Unread = 0
	}
	s.mu.Unlock()

	history, err := s.backend.ListMessages(ctx, peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		// The peer changed (or the view closed) while fetching; this result
		// belongs to a conversation that is no longer on screen.
		return nil
	}
	if err != nil {
		return err
	}

	s.conversation = history
	s.state = StateLive
	return nil
}

// Close deselects the peer. The subscription stays up; unread counters keep
// accumulating.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.selected = ""
	s.conversation = nil
	s.state = StateIdle
}

// Send submits content to the selected peer. The optimistic entry is visible
// before the network round-trip; on confirmation it is replaced by the
// server copy, matched by its temporary ID. On failure it is rolled back and
// an error notice surfaced.
func (s *Session) Send(ctx context.Context, content string) (models.Message, error) {
	s.mu.Lock()
	if s.selected == "" {
		s.mu.Unlock()
		return models.Message{}, ErrNoPeer
	}
	if strings.TrimSpace(content) == "" {
		s.mu.Unlock()
		return models.Message{}, ErrEmptyContent
	}

	now := s.now()
	if content == s.lastSentContent && now.Sub(s.lastSentAt) < sendDebounce {
		s.mu.Unlock()
		return models.Message{}, ErrDuplicateSend
	}

	token := uuid.NewString()
	tempID := "temp-" + token
	optimistic := models.Message{
		ID:        tempID,
		Sender:    s.self,
		Receiver:  s.selected,
		Content:   content,
		Timestamp: models.NowMillis(now),
		Token:     token,
	}
	s.conversation = append(s.conversation, optimistic)
	s.lastSentContent = content
	s.lastSentAt = now
	s.pruneTokens(now)
	s.sentTokens[token] = now
	receiver := s.selected
	s.mu.Unlock()

	confirmed, err := s.backend.SendMessage(ctx, receiver, content, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.removeByID(tempID)
		s.notices = append(s.notices, Notice{
			Kind:      NoticeError,
			From:      receiver,
			Content:   "message could not be sent",
			ExpiresAt: s.now().Add(noticeTTL),
		})
		return models.Message{}, err
	}

	s.replaceByID(tempID, confirmed)
	return confirmed, nil
}

// Receive merges one subscription event. Events are delivered for this user
// as receiver only, but a self-echo guard keeps a hypothetical echo of our
// own send from duplicating the optimistic entry.
func (s *Session) Receive(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if msg.Sender == s.self {
		if msg.Token != "" {
			if _, ok := s.sentTokens[msg.Token]; ok {
				return
			}
		}
		if msg.Content == s.lastSentContent && now.Sub(s.lastSentAt) <= echoWindow {
			return
		}
	}

	if s.selected != "" && s.pairMatches(msg) {
		if !s.hasDuplicate(msg) {
			s.conversation = append(s.conversation, msg)
		}
		return
	}

	// Message for a conversation that is not open: count it, surface a
	// notice and float the peer to the top of the list.
	peer := msg.Sender
	s.bumpPeer(peer)
	s.notices = append(s.notices, Notice{
		Kind:      NoticeMessage,
		From:      peer,
		Content:   msg.Content,
		ExpiresAt: now.Add(noticeTTL),
	})
}

// pairMatches reports whether msg belongs to the open conversation.
func (s *Session) pairMatches(msg models.Message) bool {
	return (msg.Sender == s.selected && msg.Receiver == s.self) ||
		(msg.Sender == s.self && msg.Receiver == s.selected)
}

// hasDuplicate guards against at-least-once redelivery: same ID, same
// idempotency token, or same sender+content within the redelivery window.
func (s *Session) hasDuplicate(msg models.Message) bool {
	sentAt := msg.SentAt()
	for _, existing := range s.conversation {
		if existing.ID == msg.ID {
			return true
		}
		if msg.Token != "" && existing.Token == msg.Token {
			return true
		}
		if existing.Sender == msg.Sender && existing.Content == msg.Content {
			delta := sentAt.Sub(existing.SentAt())
			if delta < 0 {
				delta = -delta
			}
			if delta <= redeliveryWindow {
				return true
			}
		}
	}
	return false
}

func (s *Session) peer(email string) *Peer {
	for _, p := range s.peers {
		if p.Email == email {
			return p
		}
	}
	return nil
}

// bumpPeer increments the unread counter and moves the peer to the front,
// creating an entry for a sender the peer list has not seen yet.
func (s *Session) bumpPeer(email string) {
	for i, p := range s.peers {
		if p.Email == email {
			p.Unread++
			copy(s.peers[1:i+1], s.peers[:i])
			s.peers[0] = p
			return
		}
	}
	s.peers = append([]*Peer{{Email: email, Unread: 1}}, s.peers...)
}

func (s *Session) removeByID(id string) {
	for i, m := range s.conversation {
		if m.ID == id {
			s.conversation = append(s.conversation[:i], s.conversation[i+1:]...)
			return
		}
	}
}

func (s *Session) replaceByID(id string, confirmed models.Message) {
	for i, m := range s.conversation {
		if m.ID == id {
			s.conversation[i] = confirmed
			return
		}
	}
	// The optimistic entry is gone (view closed and reopened mid-flight);
	// nothing to reconcile, the fetch already returned the server copy.
}

func (s *Session) pruneTokens(now time.Time) {
	for token, at := range s.sentTokens {
		if now.Sub(at) > tokenRetention {
			delete(s.sentTokens, token)
		}
	}
}

// State returns the current conversation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selected returns the open peer, or "".
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Conversation returns the visible message list in arrival order.
func (s *Session) Conversation() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// Peers returns the sidebar in display order.
func (s *Session) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, len(s.peers))
	for i, p := range s.peers {
		out[i] = *p
	}
	return out
}

// Unread returns the unread counter for one peer.
func (s *Session) Unread(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.peer(email); p != nil {
		return p.Unread
	}
	return 0
}

// Notices returns the not-yet-expired notifications.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.notices[:0]
	for _, n := range s.notices {
		if n.ExpiresAt.After(now) {
			kept = append(kept, n)
		}
	}
	s.notices = kept

	out := make([]Notice, len(kept))
	copy(out, kept)
	return out
}

// ClearNotices dismisses everything currently shown.
func (s *Session) ClearNotices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = nil
}
