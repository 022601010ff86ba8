package messaging

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"

	"issuechat/infrastructure"
	"issuechat/internal/sessions"
)

type fixture struct {
	sessions *sessions.Manager
	messages *Manager
	active   *MemoryStore
	archive  *MemoryStore
}

func newFixture(t *testing.T, maxContentLength int) *fixture {
	t.Helper()
	active, archive := NewMemoryStore(), NewMemoryStore()
	tiered := NewTieredStore(active, archive, nil)
	sm := sessions.NewManager(sessions.NewMemoryRepository(), tiered, nil)
	return &fixture{
		sessions: sm,
		messages: NewManager(sm, tiered, tiered, maxContentLength, nil),
		active:   active,
		archive:  archive,
	}
}

// openSession creates a session initiated by u1 with u2 as handler.
func (f *fixture) openSession(t *testing.T) *sessions.ChatSession {
	t.Helper()
	ctx := context.Background()
	s, err := f.sessions.CreateSession(ctx, "p1", "t1", sessions.TaskTypeDefect, "u1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := f.sessions.AddParticipant(ctx, s.ID, "u2", sessions.RoleHandler); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	return s
}

func (f *fixture) send(t *testing.T, sessionID, sender string, ct ContentType, payload string) *ChatMessage {
	t.Helper()
	m, err := f.messages.SendMessage(context.Background(), sessionID, sender, ct, payload)
	if err != nil {
		t.Fatalf("SendMessage(%q): %v", payload, err)
	}
	return m
}

func TestUpdateTextMessageAndCrossTypeEdit(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	s := f.openSession(t)

	msg := f.send(t, s.ID, "u2", ContentTypeText, "Hello")
	if _, err := f.messages.UpdateTextMessage(ctx, msg.ID, "Hello Updated"); err != nil {
		t.Fatalf("UpdateTextMessage: %v", err)
	}
	got, err := f.messages.GetMessage(ctx, msg.ID)
	if err != nil || got.Content != "Hello Updated" {
		t.Fatalf("GetMessage = %+v, %v", got, err)
	}

	_, err = f.messages.UpdateFileURL(ctx, msg.ID, "http://x")
	want := "Cannot update non-image message with updateImageURL() method"
	if infrastructure.Code(err) != codes.InvalidArgument || err.Error() != want {
		t.Fatalf("UpdateFileURL err = %v", err)
	}

	file := f.send(t, s.ID, "u1", ContentTypeFile, "http://files/a.png")
	_, err = f.messages.UpdateTextMessage(ctx, file.ID, "text")
	want = "Cannot update non-text message with updateTextChatMessage() method"
	if infrastructure.Code(err) != codes.InvalidArgument || err.Error() != want {
		t.Fatalf("UpdateTextMessage on file err = %v", err)
	}
	updated, err := f.messages.UpdateFileURL(ctx, file.ID, "http://files/b.png")
	if err != nil || updated.URL != "http://files/b.png" || updated.ContentType != ContentTypeFile {
		t.Fatalf("UpdateFileURL = %+v, %v", updated, err)
	}
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	s := f.openSession(t)
	text := f.send(t, s.ID, "u2", ContentTypeText, "Hello")
	file := f.send(t, s.ID, "u2", ContentTypeFile, "http://x")

	if _, err := f.messages.UpdateTextMessage(ctx, text.ID, "  "); err == nil || err.Error() != "Content cannot be null or empty" {
		t.Fatalf("blank content err = %v", err)
	}
	if _, err := f.messages.UpdateFileURL(ctx, file.ID, ""); err == nil || err.Error() != "Image URL cannot be null or empty" {
		t.Fatalf("blank url err = %v", err)
	}
	if _, err := f.messages.UpdateTextMessage(ctx, "missing", "x"); !infrastructure.IsNotFound(err) {
		t.Fatalf("missing message err = %v", err)
	}
}

func TestSendToClosedSessionFails(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	s := f.openSession(t)
	f.send(t, s.ID, "u2", ContentTypeText, "Hello")

	before, err := f.messages.ExportLog(ctx, s.ID)
	if err != nil {
		t.Fatalf("ExportLog: %v", err)
	}

	if _, err := f.sessions.UpdateStatus(ctx, s.ID, sessions.StatusClosed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	_, err = f.messages.SendMessage(ctx, s.ID, "u2", ContentTypeText, "too late")
	if infrastructure.Code(err) != codes.FailedPrecondition {
		t.Fatalf("send to closed session err = %v", err)
	}

	after, err := f.messages.ExportLog(ctx, s.ID)
	if err != nil {
		t.Fatalf("ExportLog: %v", err)
	}
	if len(after.Messages) != len(before.Messages) {
		t.Fatalf("message count changed: %d -> %d", len(before.Messages), len(after.Messages))
	}
}

func TestDeleteMessageTwice(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	s := f.openSession(t)
	msg := f.send(t, s.ID, "u2", ContentTypeText, "Hello")

	if err := f.messages.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("first DeleteMessage: %v", err)
	}
	err := f.messages.DeleteMessage(ctx, msg.ID)
	want := fmt.Sprintf("ChatMessage with ID %s not found", msg.ID)
	if !infrastructure.IsNotFound(err) || err.Error() != want {
		t.Fatalf("second DeleteMessage err = %v, want %q", err, want)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, 0)
	s := f.openSession(t)

	tests := []struct {
		name      string
		sessionID string
		sender    string
		ct        ContentType
		payload   string
		code      codes.Code
		message   string
	}{
		{"missing sender", s.ID, "", ContentTypeText, "hi", codes.InvalidArgument, "Sender ID is required"},
		{"missing content type", s.ID, "u1", "", "hi", codes.InvalidArgument, "Content type is required"},
		{"unknown content type", s.ID, "u1", "VIDEO", "hi", codes.InvalidArgument, "Unknown content type VIDEO"},
		{"blank text", s.ID, "u1", ContentTypeText, " \t", codes.InvalidArgument, "Content cannot be null or empty"},
		{"blank url", s.ID, "u1", ContentTypeFile, "", codes.InvalidArgument, "Image URL cannot be null or empty"},
		{"invalid utf-8 text", s.ID, "u1", ContentTypeText, "bad \xff\xfe bytes", codes.InvalidArgument, "Content must be valid UTF-8"},
		{"nul in text", s.ID, "u1", ContentTypeText, "a\x00b", codes.InvalidArgument, "Content cannot contain NUL characters"},
		{"invalid utf-8 url", s.ID, "u1", ContentTypeFile, "http://files/\xc3", codes.InvalidArgument, "Image URL must be valid UTF-8"},
		{"nul in url", s.ID, "u1", ContentTypeFile, "http://files/a\x00.png", codes.InvalidArgument, "Image URL cannot contain NUL characters"},
		{"not a participant", s.ID, "u9", ContentTypeText, "hi", codes.InvalidArgument,
			fmt.Sprintf("Sender u9 is not a participant of session %s", s.ID)},
		{"missing session", "nope", "u1", ContentTypeText, "hi", codes.NotFound, "ChatSession with ID nope not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.SendMessage(context.Background(), tt.sessionID, tt.sender, tt.ct, tt.payload)
			if infrastructure.Code(err) != tt.code || err.Error() != tt.message {
				t.Fatalf("err = %v, want %s %q", err, tt.code, tt.message)
			}
		})
	}

	all, _ := f.active.FindAll(context.Background())
	if len(all) != 0 {
		t.Fatalf("rejected sends persisted %d messages", len(all))
	}
}

func TestContentLengthCap(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	s := f.openSession(t)

	atCap := strings.Repeat("é", 10)
	if _, err := f.messages.SendMessage(ctx, s.ID, "u1", ContentTypeText, atCap); err != nil {
		t.Fatalf("content at cap: %v", err)
	}
	_, err := f.messages.SendMessage(ctx, s.ID, "u1", ContentTypeText, atCap+"x")
	if infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("content over cap err = %v", err)
	}

	msg := f.send(t, s.ID, "u1", ContentTypeText, "short")
	if _, err := f.messages.UpdateTextMessage(ctx, msg.ID, atCap+"x"); infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("update over cap err = %v", err)
	}
}

func TestUnstorableTextNeverReachesArchive(t *testing.T) {
	ctx := context.Background()
	archive := openTestArchive(t, filepath.Join(t.TempDir(), "archive.db"), CompressionZstd)
	active := NewMemoryStore()
	tiered := NewTieredStore(active, archive, nil)
	sm := sessions.NewManager(sessions.NewMemoryRepository(), tiered, nil)
	mm := NewManager(sm, tiered, tiered, 0, nil)

	s, err := sm.CreateSession(ctx, "p1", "t1", sessions.TaskTypeTask, "u1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := mm.SendMessage(ctx, s.ID, "u1", ContentTypeText, "bad \xff\xfe bytes"); infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("send invalid utf-8 err = %v", err)
	}
	text, err := mm.SendMessage(ctx, s.ID, "u1", ContentTypeText, "fine")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	file, err := mm.SendMessage(ctx, s.ID, "u1", ContentTypeFile, "http://files/a.png")
	if err != nil {
		t.Fatalf("SendMessage file: %v", err)
	}

	if _, err := mm.UpdateTextMessage(ctx, text.ID, "bad \xff"); infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("update invalid utf-8 err = %v", err)
	}
	if _, err := mm.UpdateTextMessage(ctx, text.ID, "nul\x00"); infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("update nul err = %v", err)
	}
	if _, err := mm.UpdateFileURL(ctx, file.ID, "http://files/\xff"); infrastructure.Code(err) != codes.InvalidArgument {
		t.Fatalf("update url invalid utf-8 err = %v", err)
	}

	if moved, err := mm.ArchiveSession(ctx, s.ID); err != nil || moved != 2 {
		t.Fatalf("ArchiveSession = %d, %v", moved, err)
	}
	list, err := mm.ListMessages(ctx, s.ID)
	if err != nil || len(list) != 2 || list[0].Content != "fine" {
		t.Fatalf("ListMessages after archive = %v, %v", ids(list), err)
	}
	if _, err := mm.ExportLog(ctx, s.ID); err != nil {
		t.Fatalf("ExportLog after archive: %v", err)
	}
}

func TestExportLog(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	s := f.openSession(t)
	if _, err := f.sessions.AddParticipant(ctx, s.ID, "u3", sessions.RoleObserver); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	first := f.send(t, s.ID, "u1", ContentTypeText, "first")
	second := f.send(t, s.ID, "u2", ContentTypeFile, "http://files/log.txt")
	third := f.send(t, s.ID, "u3", ContentTypeText, "third")

	if _, err := f.sessions.RemoveParticipant(ctx, s.ID, "u3"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}
	if _, err := f.sessions.ChangeParticipantRole(ctx, s.ID, "u2", sessions.RoleObserver); err != nil {
		t.Fatalf("ChangeParticipantRole: %v", err)
	}

	doc, err := f.messages.ExportLog(ctx, s.ID)
	if err != nil {
		t.Fatalf("ExportLog: %v", err)
	}
	if doc.ChatSessionID != s.ID || doc.TaskID != "t1" || doc.ProjectID != "p1" || doc.TaskType != sessions.TaskTypeDefect {
		t.Fatalf("export metadata = %+v", doc)
	}

	want := []struct {
		id, role string
		ct       ContentType
	}{
		{first.ID, "INITIATOR", ContentTypeText},
		{second.ID, "OBSERVER", ContentTypeFile},
		{third.ID, "FORMER_PARTICIPANT", ContentTypeText},
	}
	if len(doc.Messages) != len(want) {
		t.Fatalf("exported %d messages, want %d", len(doc.Messages), len(want))
	}
	for i, w := range want {
		got := doc.Messages[i]
		if got.MessageID != w.id || got.MemberRole != w.role || got.MessageType != w.ct {
			t.Fatalf("record %d = %+v, want id=%s role=%s", i, got, w.id, w.role)
		}
	}
	if doc.Messages[1].URL != "http://files/log.txt" || doc.Messages[1].Content != "" {
		t.Fatalf("file record = %+v", doc.Messages[1])
	}

	again, err := f.messages.ExportLog(ctx, s.ID)
	if err != nil {
		t.Fatalf("second ExportLog: %v", err)
	}
	if !reflect.DeepEqual(doc, again) {
		t.Fatal("export is not repeatable without intervening writes")
	}
}

func TestArchiveSession(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	s := f.openSession(t)
	a := f.send(t, s.ID, "u1", ContentTypeText, "a")
	b := f.send(t, s.ID, "u2", ContentTypeText, "b")

	moved, err := f.messages.ArchiveSession(ctx, s.ID)
	if err != nil || moved != 2 {
		t.Fatalf("ArchiveSession = %d, %v", moved, err)
	}
	if left, _ := f.active.FindBySession(ctx, s.ID); len(left) != 0 {
		t.Fatalf("active tier still holds %d messages", len(left))
	}
	if moved, err := f.messages.ArchiveSession(ctx, s.ID); err != nil || moved != 0 {
		t.Fatalf("second ArchiveSession = %d, %v", moved, err)
	}

	c := f.send(t, s.ID, "u1", ContentTypeText, "c")
	list, err := f.messages.ListMessages(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(list) != 3 || list[0].ID != a.ID || list[1].ID != b.ID || list[2].ID != c.ID {
		t.Fatalf("ListMessages order = %v", ids(list))
	}

	if _, err := f.messages.UpdateTextMessage(ctx, a.ID, "a2"); err != nil {
		t.Fatalf("update archived message: %v", err)
	}
	got, err := f.messages.GetMessage(ctx, a.ID)
	if err != nil || got.Content != "a2" {
		t.Fatalf("GetMessage archived = %+v, %v", got, err)
	}

	deleted, err := f.sessions.DeleteSession(ctx, s.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteSession = %v, %v", deleted, err)
	}
	if rest, _ := f.archive.FindAll(ctx); len(rest) != 0 {
		t.Fatalf("archive still holds %d messages", len(rest))
	}
	if rest, _ := f.active.FindAll(ctx); len(rest) != 0 {
		t.Fatalf("active tier still holds %d messages", len(rest))
	}
	if _, err := f.messages.GetMessage(ctx, c.ID); !infrastructure.IsNotFound(err) {
		t.Fatalf("GetMessage after session delete err = %v", err)
	}
}

func TestArchiveMissingSession(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.messages.ArchiveSession(context.Background(), "nope"); !infrastructure.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
}

func ids(list []*ChatMessage) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}
