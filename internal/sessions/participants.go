package sessions

import (
	"maps"
	"sort"
	"strings"
	"time"

	"issuechat/infrastructure"
)

const initiatorImmutable = "The role INITIATOR can not be changed or assigned to another participant or more than one participant"

// Participants maps user IDs to their role in one session. Every mutation is
// validated before it is applied, so a value always holds exactly one
// INITIATOR and no duplicate users.
type Participants struct {
	sessionID string
	initiator string
	roles     map[string]ParticipantRole
	former    map[string]time.Time
}

// NewParticipants starts a participant set whose only member is the initiator.
func NewParticipants(sessionID, initiatorID string) (*Participants, error) {
	if strings.TrimSpace(initiatorID) == "" {
		return nil, infrastructure.InvalidArgument("Initiator ID is required")
	}
	return &Participants{
		sessionID: sessionID,
		initiator: initiatorID,
		roles:     map[string]ParticipantRole{initiatorID: RoleInitiator},
		former:    map[string]time.Time{},
	}, nil
}

// RestoreParticipants rebuilds a participant set read back from storage and
// rejects rows that break the single-INITIATOR rule.
func RestoreParticipants(sessionID string, roles map[string]ParticipantRole, former map[string]time.Time) (*Participants, error) {
	p := &Participants{
		sessionID: sessionID,
		roles:     make(map[string]ParticipantRole, len(roles)),
		former:    make(map[string]time.Time, len(former)),
	}
	for userID, role := range roles {
		if !role.Valid() {
			return nil, infrastructure.InvalidArgument("Unknown participant role %s for %s in session %s", role, userID, sessionID)
		}
		if role == RoleInitiator {
			if p.initiator != "" {
				return nil, infrastructure.Conflict("session %s has more than one INITIATOR", sessionID)
			}
			p.initiator = userID
		}
		p.roles[userID] = role
	}
	if p.initiator == "" {
		return nil, infrastructure.Conflict("session %s has no INITIATOR", sessionID)
	}
	for userID, at := range former {
		if _, active := p.roles[userID]; !active {
			p.former[userID] = at
		}
	}
	return p, nil
}

// Add admits a new non-initiator participant.
func (p *Participants) Add(userID string, role ParticipantRole) error {
	if role == "" {
		return infrastructure.InvalidArgument("Role is required")
	}
	if role == RoleInitiator {
		return infrastructure.InvalidArgument("Only one participant can have the role INITIATOR")
	}
	if !role.Valid() {
		return infrastructure.InvalidArgument("Unknown participant role %s", role)
	}
	if strings.TrimSpace(userID) == "" {
		return infrastructure.InvalidArgument("Participant ID is required")
	}
	if _, ok := p.roles[userID]; ok {
		return infrastructure.InvalidArgument("Participant with ID %s already exists in session %s", userID, p.sessionID)
	}
	p.roles[userID] = role
	delete(p.former, userID)
	return nil
}

// ChangeRole moves a non-initiator participant between HANDLER and OBSERVER.
func (p *Participants) ChangeRole(userID string, role ParticipantRole) error {
	if role == "" {
		return infrastructure.InvalidArgument("Role is required")
	}
	if role == RoleInitiator {
		return infrastructure.InvalidArgument(initiatorImmutable)
	}
	if !role.Valid() {
		return infrastructure.InvalidArgument("Unknown participant role %s", role)
	}
	current, ok := p.roles[userID]
	if !ok {
		return infrastructure.NotFound("Participant with ID %s not found in session %s", userID, p.sessionID)
	}
	if current == RoleInitiator {
		return infrastructure.InvalidArgument(initiatorImmutable)
	}
	p.roles[userID] = role
	return nil
}

// Remove drops a non-initiator participant and remembers them as former.
func (p *Participants) Remove(userID string, at time.Time) error {
	current, ok := p.roles[userID]
	if !ok {
		return infrastructure.NotFound("Participant with ID %s not found in session %s", userID, p.sessionID)
	}
	if current == RoleInitiator {
		return infrastructure.InvalidArgument("The participant with role INITIATOR can not be removed from session %s", p.sessionID)
	}
	delete(p.roles, userID)
	p.former[userID] = at
	return nil
}

// Role returns the current role of userID.
func (p *Participants) Role(userID string) (ParticipantRole, bool) {
	role, ok := p.roles[userID]
	return role, ok
}

// Resolve is like Role but reports RoleFormer for removed participants.
func (p *Participants) Resolve(userID string) (ParticipantRole, bool) {
	if role, ok := p.roles[userID]; ok {
		return role, true
	}
	if _, ok := p.former[userID]; ok {
		return RoleFormer, true
	}
	return "", false
}

func (p *Participants) Has(userID string) bool {
	_, ok := p.roles[userID]
	return ok
}

func (p *Participants) Initiator() string {
	return p.initiator
}

func (p *Participants) Len() int {
	return len(p.roles)
}

// Roles returns a copy of the current userID → role mapping.
func (p *Participants) Roles() map[string]ParticipantRole {
	return maps.Clone(p.roles)
}

// Former returns a copy of removed user IDs and their removal time.
func (p *Participants) Former() map[string]time.Time {
	return maps.Clone(p.former)
}

// UserIDs returns current participant IDs in lexical order.
func (p *Participants) UserIDs() []string {
	ids := make([]string, 0, len(p.roles))
	for id := range p.roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Participants) Clone() *Participants {
	if p == nil {
		return nil
	}
	return &Participants{
		sessionID: p.sessionID,
		initiator: p.initiator,
		roles:     maps.Clone(p.roles),
		former:    maps.Clone(p.former),
	}
}
