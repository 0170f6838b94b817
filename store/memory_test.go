package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studo/models"
)

func TestMemoryInsertAssignsID(t *testing.T) {
	s := NewMemory()

	msg := models.Message{Sender: "a@x.com", Receiver: "b@x.com", Content: "hi", Timestamp: "1700000000000"}
	require.NoError(t, s.Insert(context.Background(), &msg))
	assert.NotEmpty(t, msg.ID)
}

func TestMemoryListBetweenBothDirections(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	msgs := []models.Message{
		{Sender: "a@x.com", Receiver: "b@x.com", Content: "one"},
		{Sender: "b@x.com", Receiver: "a@x.com", Content: "two"},
		{Sender: "a@x.com", Receiver: "c@x.com", Content: "other pair"},
	}
	for i := range msgs {
		require.NoError(t, s.Insert(ctx, &msgs[i]))
	}

	got, err := s.ListBetween(ctx, "a@x.com", "b@x.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Content)
	assert.Equal(t, "two", got[1].Content)

	reversed, err := s.ListBetween(ctx, "b@x.com", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, got, reversed)
}

func TestMemoryFailInsert(t *testing.T) {
	s := NewMemory()
	s.FailInsert = errors.New("storage unreachable")

	err := s.Insert(context.Background(), &models.Message{Sender: "a@x.com", Receiver: "b@x.com"})
	require.Error(t, err)

	got, err := s.ListBetween(context.Background(), "a@x.com", "b@x.com")
	require.NoError(t, err)
	assert.Empty(t, got, "failed insert must not persist anything")

	require.NoError(t, s.Insert(context.Background(), &models.Message{Sender: "a@x.com", Receiver: "b@x.com"}))
}
