package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"studo/models"
)

// Memory is an in-process MessageStore used by tests and local development.
// Insertion order is the storage order.
type Memory struct {
	mu       sync.RWMutex
	messages []models.Message

	// FailInsert makes the next Insert return this error, simulating an
	// unreachable store.
	FailInsert error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Insert(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsert != nil {
		err := s.FailInsert
		s.FailInsert = nil
		return err
	}

	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *Memory) ListBetween(ctx context.Context, partyA, partyB string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.messages {
		if (m.Sender == partyA && m.Receiver == partyB) || (m.Sender == partyB && m.Receiver == partyA) {
			out = append(out, m)
		}
	}
	return out, nil
}
