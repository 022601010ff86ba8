package sessions

import (
	"context"
	"sort"
	"sync"

	"issuechat/infrastructure"
)

type memoryEntry struct {
	mu      sync.RWMutex
	session *ChatSession
	deleted bool
}

// MemoryRepository keeps sessions in process memory with one RWMutex per
// session. Nothing is persisted.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*memoryEntry),
	}
}

func (r *MemoryRepository) Create(_ context.Context, session *ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return infrastructure.Conflict("ChatSession with ID %s already exists", session.ID)
	}
	r.sessions[session.ID] = &memoryEntry{session: session.Clone()}
	return nil
}

func (r *MemoryRepository) entry(id string) (*memoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, infrastructure.NotFound("ChatSession with ID %s not found", id)
	}
	return e, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*ChatSession, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return nil, infrastructure.NotFound("ChatSession with ID %s not found", id)
	}
	return e.session.Clone(), nil
}

func (r *MemoryRepository) ListByProject(_ context.Context, projectID string) ([]*ChatSession, error) {
	return r.filter(func(s *ChatSession) bool { return s.ProjectID == projectID }), nil
}

func (r *MemoryRepository) ListByParticipant(_ context.Context, userID string) ([]*ChatSession, error) {
	return r.filter(func(s *ChatSession) bool { return s.Participants.Has(userID) }), nil
}

func (r *MemoryRepository) filter(keep func(*ChatSession) bool) []*ChatSession {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var result []*ChatSession
	for _, e := range entries {
		e.mu.RLock()
		if !e.deleted && keep(e.session) {
			result = append(result, e.session.Clone())
		}
		e.mu.RUnlock()
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Update applies mutate to a copy and stores it only when mutate succeeds.
func (r *MemoryRepository) Update(_ context.Context, id string, mutate func(*ChatSession) error) (*ChatSession, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, infrastructure.NotFound("ChatSession with ID %s not found", id)
	}

	working := e.session.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	e.session = working
	return working.Clone(), nil
}

func (r *MemoryRepository) View(_ context.Context, id string, fn func(*ChatSession) error) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return infrastructure.NotFound("ChatSession with ID %s not found", id)
	}
	return fn(e.session.Clone())
}

func (r *MemoryRepository) Delete(_ context.Context, id string, beforeDelete func(*ChatSession) error) (bool, error) {
	e, err := r.entry(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return false, infrastructure.NotFound("ChatSession with ID %s not found", id)
	}
	if beforeDelete != nil {
		if err := beforeDelete(e.session.Clone()); err != nil {
			return false, err
		}
	}
	e.deleted = true

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return true, nil
}
