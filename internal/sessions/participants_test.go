package sessions

import (
	"testing"
	"time"

	"google.golang.org/grpc/codes"

	"issuechat/infrastructure"
)

func countInitiators(p *Participants) int {
	n := 0
	for _, role := range p.Roles() {
		if role == RoleInitiator {
			n++
		}
	}
	return n
}

func TestParticipantsAddRules(t *testing.T) {
	p, err := NewParticipants("s1", "u4")
	if err != nil {
		t.Fatalf("NewParticipants err: %v", err)
	}

	tests := []struct {
		name    string
		userID  string
		role    ParticipantRole
		code    codes.Code
		message string
	}{
		{"missing role", "u3", "", codes.InvalidArgument, "Role is required"},
		{"second initiator", "u3", RoleInitiator, codes.InvalidArgument, "Only one participant can have the role INITIATOR"},
		{"unknown role", "u3", "OWNER", codes.InvalidArgument, "Unknown participant role OWNER"},
		{"duplicate", "u4", RoleObserver, codes.InvalidArgument, "Participant with ID u4 already exists in session s1"},
		{"handler", "u3", RoleHandler, codes.OK, ""},
		{"duplicate handler", "u3", RoleObserver, codes.InvalidArgument, "Participant with ID u3 already exists in session s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Add(tt.userID, tt.role)
			if got := infrastructure.Code(err); got != tt.code {
				t.Fatalf("Add code = %v, want %v (err %v)", got, tt.code, err)
			}
			if err != nil && err.Error() != tt.message {
				t.Fatalf("Add message = %q, want %q", err.Error(), tt.message)
			}
			if n := countInitiators(p); n != 1 {
				t.Fatalf("initiator count = %d", n)
			}
		})
	}

	if role, _ := p.Role("u3"); role != RoleHandler {
		t.Fatalf("u3 role = %s", role)
	}
}

func TestParticipantsChangeRole(t *testing.T) {
	p, _ := NewParticipants("s1", "u1")
	if err := p.Add("u2", RoleHandler); err != nil {
		t.Fatalf("Add err: %v", err)
	}

	if err := p.ChangeRole("u1", RoleObserver); err == nil || err.Error() != initiatorImmutable {
		t.Fatalf("expected initiator error, got %v", err)
	}
	if err := p.ChangeRole("u2", RoleInitiator); err == nil || err.Error() != initiatorImmutable {
		t.Fatalf("expected initiator error, got %v", err)
	}
	if err := p.ChangeRole("u2", ""); err == nil || err.Error() != "Role is required" {
		t.Fatalf("expected role required, got %v", err)
	}
	if err := p.ChangeRole("ghost", RoleObserver); !infrastructure.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := p.ChangeRole("u2", RoleObserver); err != nil {
		t.Fatalf("ChangeRole err: %v", err)
	}
	if role, _ := p.Role("u2"); role != RoleObserver {
		t.Fatalf("u2 role = %s", role)
	}
	if countInitiators(p) != 1 {
		t.Fatal("initiator count changed")
	}
}

func TestParticipantsRemoveTracksFormer(t *testing.T) {
	p, _ := NewParticipants("s1", "u1")
	_ = p.Add("u2", RoleObserver)

	if err := p.Remove("u1", time.Now()); infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected initiator removal to fail, got %v", err)
	}
	if err := p.Remove("u2", time.Now()); err != nil {
		t.Fatalf("Remove err: %v", err)
	}
	if err := p.Remove("u2", time.Now()); !infrastructure.IsNotFound(err) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
	if p.Has("u2") {
		t.Fatal("u2 still present")
	}
	if role, ok := p.Resolve("u2"); !ok || role != RoleFormer {
		t.Fatalf("Resolve(u2) = %s, %v", role, ok)
	}
	if _, ok := p.Resolve("never"); ok {
		t.Fatal("never-participated user resolved")
	}

	if err := p.Add("u2", RoleHandler); err != nil {
		t.Fatalf("re-adding former participant: %v", err)
	}
	if _, former := p.Former()["u2"]; former {
		t.Fatal("re-added participant still listed as former")
	}
}

func TestRestoreParticipantsRejectsBrokenRows(t *testing.T) {
	if _, err := RestoreParticipants("s1", map[string]ParticipantRole{"a": RoleHandler}, nil); err == nil {
		t.Fatal("expected error without initiator")
	}
	if _, err := RestoreParticipants("s1", map[string]ParticipantRole{"a": RoleInitiator, "b": RoleInitiator}, nil); err == nil {
		t.Fatal("expected error with two initiators")
	}
	p, err := RestoreParticipants("s1",
		map[string]ParticipantRole{"a": RoleInitiator, "b": RoleObserver},
		map[string]time.Time{"c": time.Now(), "b": time.Now()},
	)
	if err != nil {
		t.Fatalf("RestoreParticipants err: %v", err)
	}
	if p.Initiator() != "a" || p.Len() != 2 {
		t.Fatalf("unexpected restore: initiator=%s len=%d", p.Initiator(), p.Len())
	}
	if _, ok := p.Former()["b"]; ok {
		t.Fatal("active participant must not be former")
	}
}

func TestParticipantsCloneIsIndependent(t *testing.T) {
	p, _ := NewParticipants("s1", "u1")
	c := p.Clone()
	_ = c.Add("u2", RoleHandler)
	if p.Has("u2") {
		t.Fatal("clone shares state with original")
	}
}
