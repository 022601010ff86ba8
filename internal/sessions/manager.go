package sessions

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"issuechat/infrastructure"
)

// MessagePurger removes every stored message of a session, whichever tier
// holds it.
type MessagePurger interface {
	DeleteBySession(ctx context.Context, sessionID string) (int, error)
}

// Manager owns the session lifecycle: creation, participants, status and
// task type. Every mutation runs inside Repository.Update, so concurrent
// calls against one session are serialized.
type Manager struct {
	repo   Repository
	purger MessagePurger
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(repo Repository, purger MessagePurger, logger *slog.Logger) *Manager {
	return &Manager{
		repo:   repo,
		purger: purger,
		logger: infrastructure.Discard(logger),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// CreateSession opens a conversation for a task whose existence the caller
// has already confirmed. The initiator is the only participant.
func (m *Manager) CreateSession(ctx context.Context, projectID, taskID string, taskType TaskType, initiatorID string) (*ChatSession, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, infrastructure.InvalidArgument("Project ID is required")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, infrastructure.InvalidArgument("Task ID is required")
	}
	if err := validateTaskType(taskType); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	participants, err := NewParticipants(id, initiatorID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &ChatSession{
		ID:           id,
		ProjectID:    projectID,
		TaskID:       taskID,
		TaskType:     taskType,
		Status:       StatusOpen,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "chat session created",
		"session_id", id,
		"project_id", projectID,
		"task_id", taskID,
		"task_type", taskType,
		"initiator_id", initiatorID,
	)
	return session, nil
}

func (m *Manager) GetSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	return m.repo.Get(ctx, sessionID)
}

func (m *Manager) ListSessionsByProject(ctx context.Context, projectID string) ([]*ChatSession, error) {
	return m.repo.ListByProject(ctx, projectID)
}

func (m *Manager) ListSessionsByParticipant(ctx context.Context, userID string) ([]*ChatSession, error) {
	return m.repo.ListByParticipant(ctx, userID)
}

func (m *Manager) AddParticipant(ctx context.Context, sessionID, userID string, role ParticipantRole) (*ChatSession, error) {
	return m.update(ctx, sessionID, func(s *ChatSession) error {
		return s.Participants.Add(userID, role)
	})
}

func (m *Manager) ChangeParticipantRole(ctx context.Context, sessionID, userID string, role ParticipantRole) (*ChatSession, error) {
	return m.update(ctx, sessionID, func(s *ChatSession) error {
		return s.Participants.ChangeRole(userID, role)
	})
}

func (m *Manager) RemoveParticipant(ctx context.Context, sessionID, userID string) (*ChatSession, error) {
	return m.update(ctx, sessionID, func(s *ChatSession) error {
		return s.Participants.Remove(userID, m.now())
	})
}

// UpdateStatus closes an open session. Setting the current status again and
// reopening a closed session are both rejected.
func (m *Manager) UpdateStatus(ctx context.Context, sessionID string, status Status) (*ChatSession, error) {
	if status == "" {
		return nil, infrastructure.InvalidArgument("ChatStatus is required")
	}
	if !status.Valid() {
		return nil, infrastructure.InvalidArgument("Unknown ChatStatus %s", status)
	}
	session, err := m.update(ctx, sessionID, func(s *ChatSession) error {
		if s.Status == status {
			return infrastructure.InvalidArgument("ChatStatus is already set to %s", status)
		}
		if s.Status == StatusClosed {
			return infrastructure.Conflict("Closed chat session %s can not be reopened", s.ID)
		}
		s.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "chat session status changed", "session_id", sessionID, "status", status)
	return session, nil
}

func (m *Manager) UpdateTaskType(ctx context.Context, sessionID string, taskType TaskType) (*ChatSession, error) {
	if err := validateTaskType(taskType); err != nil {
		return nil, err
	}
	return m.update(ctx, sessionID, func(s *ChatSession) error {
		if s.TaskType == taskType {
			return infrastructure.InvalidArgument("TaskType is already set to %s", taskType)
		}
		s.TaskType = taskType
		return nil
	})
}

// DeleteSession removes a session and all of its messages. It reports false
// when the session does not exist.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	var purged int
	deleted, err := m.repo.Delete(ctx, sessionID, func(s *ChatSession) error {
		if m.purger == nil {
			return nil
		}
		n, err := m.purger.DeleteBySession(ctx, s.ID)
		purged = n
		return err
	})
	if infrastructure.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.logger.InfoContext(ctx, "chat session deleted", "session_id", sessionID, "messages_deleted", purged)
	return deleted, nil
}

// ResolveParticipantRole looks up the session and resolves the user's role
// with ChatSession.ResolveRole.
func (m *Manager) ResolveParticipantRole(ctx context.Context, sessionID, userID string) (ParticipantRole, error) {
	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.ResolveRole(userID)
}

// ViewSession runs fn against a snapshot of the session while holding a
// shared lock on it.
func (m *Manager) ViewSession(ctx context.Context, sessionID string, fn func(*ChatSession) error) error {
	return m.repo.View(ctx, sessionID, fn)
}

// LockSession runs fn while holding the session's exclusive lock. The
// session itself is left unchanged.
func (m *Manager) LockSession(ctx context.Context, sessionID string, fn func(*ChatSession) error) error {
	_, err := m.repo.Update(ctx, sessionID, fn)
	return err
}

// WithOpenSession runs fn against a snapshot of an open session. A
// concurrent UpdateStatus waits until fn returns, so work done in fn never
// lands on a session already recorded as closed.
func (m *Manager) WithOpenSession(ctx context.Context, sessionID string, fn func(*ChatSession) error) error {
	return m.repo.View(ctx, sessionID, func(s *ChatSession) error {
		if s.IsClosed() {
			return infrastructure.Conflict("Chat session %s is closed", s.ID)
		}
		return fn(s)
	})
}

func (m *Manager) update(ctx context.Context, sessionID string, mutate func(*ChatSession) error) (*ChatSession, error) {
	return m.repo.Update(ctx, sessionID, func(s *ChatSession) error {
		if err := mutate(s); err != nil {
			return err
		}
		s.UpdatedAt = m.now()
		return nil
	})
}

func validateTaskType(taskType TaskType) error {
	if taskType == "" {
		return infrastructure.InvalidArgument("TaskType is required")
	}
	if !taskType.Valid() {
		return infrastructure.InvalidArgument("Unknown TaskType %s", taskType)
	}
	return nil
}
