package sessions

import (
	"time"

	"issuechat/infrastructure"
)

type TaskType string

const (
	TaskTypeTask   TaskType = "TASK"
	TaskTypeDefect TaskType = "DEFECT"
)

func (t TaskType) Valid() bool {
	return t == TaskTypeTask || t == TaskTypeDefect
}

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

type ParticipantRole string

const (
	RoleInitiator ParticipantRole = "INITIATOR"
	RoleHandler   ParticipantRole = "HANDLER"
	RoleObserver  ParticipantRole = "OBSERVER"

	// RoleFormer is reported for users who were removed from a session.
	// It is never stored as a participant's role.
	RoleFormer ParticipantRole = "FORMER_PARTICIPANT"
)

func (r ParticipantRole) Valid() bool {
	return r == RoleInitiator || r == RoleHandler || r == RoleObserver
}

// ChatSession is a conversation attached to exactly one task or defect.
type ChatSession struct {
	ID           string
	ProjectID    string
	TaskID       string
	TaskType     TaskType
	Status       Status
	Participants *Participants
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy so callers can't mutate stored state.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = s.Participants.Clone()
	return &c
}

func (s *ChatSession) IsClosed() bool {
	return s.Status == StatusClosed
}

// ResolveRole returns the user's current role, or RoleFormer for a user who
// has since been removed.
func (s *ChatSession) ResolveRole(userID string) (ParticipantRole, error) {
	role, ok := s.Participants.Resolve(userID)
	if !ok {
		return "", infrastructure.NotFound("Participant with ID %s never took part in session %s", userID, s.ID)
	}
	return role, nil
}
