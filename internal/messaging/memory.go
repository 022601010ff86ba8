package messaging

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store. Messages of a session are kept in
// insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*ChatMessage
	index    map[string]string // message ID -> session ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]*ChatMessage),
		index:    make(map[string]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, message *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(message)
	return nil
}

func (s *MemoryStore) SaveAll(_ context.Context, messages []*ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		s.put(m)
	}
	return nil
}

func (s *MemoryStore) put(message *ChatMessage) {
	list := s.sessions[message.ChatSessionID]
	for i, m := range list {
		if m.ID == message.ID {
			list[i] = message.Clone()
			return
		}
	}
	s.sessions[message.ChatSessionID] = append(list, message.Clone())
	s.index[message.ID] = message.ChatSessionID
}

func (s *MemoryStore) find(sessionID, messageID string) (int, *ChatMessage) {
	for i, m := range s.sessions[sessionID] {
		if m.ID == messageID {
			return i, m
		}
	}
	return -1, nil
}

func (s *MemoryStore) Find(_ context.Context, sessionID, messageID string) (*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, m := s.find(sessionID, messageID); m != nil {
		return m.Clone(), nil
	}
	return nil, messageNotFound(messageID)
}

func (s *MemoryStore) Lookup(ctx context.Context, messageID string) (*ChatMessage, error) {
	s.mu.RLock()
	sessionID, ok := s.index[messageID]
	s.mu.RUnlock()
	if !ok {
		return nil, messageNotFound(messageID)
	}
	return s.Find(ctx, sessionID, messageID)
}

func (s *MemoryStore) Update(_ context.Context, message *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, _ := s.find(message.ChatSessionID, message.ID)
	if i < 0 {
		return messageNotFound(message.ID)
	}
	s.sessions[message.ChatSessionID][i] = message.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(sessionID, messageID), nil
}

func (s *MemoryStore) remove(sessionID, messageID string) bool {
	i, _ := s.find(sessionID, messageID)
	if i < 0 {
		return false
	}
	s.sessions[sessionID] = slices.Delete(s.sessions[sessionID], i, i+1)
	if len(s.sessions[sessionID]) == 0 {
		delete(s.sessions, sessionID)
	}
	delete(s.index, messageID)
	return true
}

func (s *MemoryStore) DeleteMany(_ context.Context, sessionID string, messageIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range messageIDs {
		if s.remove(sessionID, id) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteBySession(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sessions[sessionID]
	for _, m := range list {
		delete(s.index, m.ID)
	}
	delete(s.sessions, sessionID)
	return len(list), nil
}

func (s *MemoryStore) FindBySession(_ context.Context, sessionID string) ([]*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedClones(s.sessions[sessionID]), nil
}

func (s *MemoryStore) FindAll(_ context.Context) ([]*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*ChatMessage
	for _, list := range s.sessions {
		all = append(all, list...)
	}
	return sortedClones(all), nil
}

func sortedClones(list []*ChatMessage) []*ChatMessage {
	out := make([]*ChatMessage, len(list))
	for i, m := range list {
		out[i] = m.Clone()
	}
	slices.SortStableFunc(out, func(a, b *ChatMessage) int {
		switch {
		case a.ChatSessionID != b.ChatSessionID:
			if a.ChatSessionID < b.ChatSessionID {
				return -1
			}
			return 1
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case b.CreatedAt.Before(a.CreatedAt):
			return 1
		}
		return 0
	})
	return out
}
