package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studo/models"
	"studo/store"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []models.Message
	online    bool
}

func (p *fakePublisher) Publish(message models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, message)
}

func (p *fakePublisher) Connected(email string) bool { return p.online }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func newMessageRouter(t *testing.T, self string) (*gin.Engine, *store.Memory, *fakePublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	pub := &fakePublisher{online: true}
	SetMessageStore(mem)
	SetPublisher(pub)

	router := gin.New()
	authed := func(c *gin.Context) { c.Set("email", self) }
	router.POST("/api/messages", authed, SendMessage)
	router.GET("/api/messages/:peer", authed, GetMessages)
	return router, mem, pub
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSendMessagePersistsAndPublishes(t *testing.T) {
	router, mem, pub := newMessageRouter(t, "a@x.com")

	w := postJSON(t, router, "/api/messages", SendMessageRequest{
		Receiver: "b@x.com",
		Content:  "Meeting at 3pm",
		Token:    "tok-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var got models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, got.Timestamp)
	assert.Equal(t, "a@x.com", got.Sender)
	assert.Equal(t, "b@x.com", got.Receiver)
	assert.Equal(t, "Meeting at 3pm", got.Content)
	assert.Equal(t, "tok-1", got.Token)

	stored, err := mem.ListBetween(context.Background(), "a@x.com", "b@x.com")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, got, stored[0])

	require.Equal(t, 1, pub.count())
	assert.Equal(t, got, pub.published[0])
}

func TestSendMessageStorageFailureSkipsPublish(t *testing.T) {
	router, mem, pub := newMessageRouter(t, "a@x.com")
	mem.FailInsert = errors.New("mongo down")

	w := postJSON(t, router, "/api/messages", SendMessageRequest{
		Receiver: "b@x.com",
		Content:  "hi",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 0, pub.count(), "failed insert must not be published")

	stored, err := mem.ListBetween(context.Background(), "a@x.com", "b@x.com")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSendMessageValidation(t *testing.T) {
	router, _, pub := newMessageRouter(t, "a@x.com")

	for name, body := range map[string]SendMessageRequest{
		"missing receiver": {Content: "hi"},
		"missing content":  {Receiver: "b@x.com"},
		"bad receiver":     {Receiver: "not-an-email", Content: "hi"},
	} {
		w := postJSON(t, router, "/api/messages", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
	assert.Equal(t, 0, pub.count())
}

func TestGetMessagesBothDirections(t *testing.T) {
	router, mem, _ := newMessageRouter(t, "a@x.com")

	seed := []models.Message{
		{Sender: "a@x.com", Receiver: "b@x.com", Content: "one", Timestamp: "1"},
		{Sender: "b@x.com", Receiver: "a@x.com", Content: "two", Timestamp: "2"},
		{Sender: "b@x.com", Receiver: "c@x.com", Content: "unrelated", Timestamp: "3"},
	}
	for i := range seed {
		require.NoError(t, mem.Insert(context.Background(), &seed[i]))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/messages/b@x.com", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Content)
	assert.Equal(t, "two", got[1].Content)
}

func TestGetMessagesEmptyHistory(t *testing.T) {
	router, _, _ := newMessageRouter(t, "a@x.com")

	req := httptest.NewRequest(http.MethodGet, "/api/messages/b@x.com", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
