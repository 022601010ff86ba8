package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"issuechat/internal/sessions"
)

func TestBuildExportUnknownSender(t *testing.T) {
	participants, err := sessions.NewParticipants("s1", "u1")
	if err != nil {
		t.Fatalf("NewParticipants: %v", err)
	}
	s := &sessions.ChatSession{ID: "s1", ProjectID: "p1", TaskID: "t1", TaskType: sessions.TaskTypeTask, Participants: participants}

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	doc := buildExport(s, []*ChatMessage{
		{ID: "b", ChatSessionID: "s1", SenderID: "stranger", ContentType: ContentTypeText, Content: "late", CreatedAt: at.Add(time.Minute)},
		{ID: "a", ChatSessionID: "s1", SenderID: "u1", ContentType: ContentTypeText, Content: "early", CreatedAt: at},
		{ID: "c", ChatSessionID: "s1", SenderID: "u1", ContentType: ContentTypeText, Content: "tie", CreatedAt: at.Add(time.Minute)},
	})

	if got := []string{doc.Messages[0].MessageID, doc.Messages[1].MessageID, doc.Messages[2].MessageID}; got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order = %v", got)
	}
	if doc.Messages[1].MemberRole != RoleUnknown {
		t.Fatalf("role = %s", doc.Messages[1].MemberRole)
	}
}

func TestRenderJSON(t *testing.T) {
	f := newFixture(t, 0)
	s := f.openSession(t)
	f.send(t, s.ID, "u2", ContentTypeText, "Hello")

	doc, err := f.messages.ExportLog(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("ExportLog: %v", err)
	}
	var buf bytes.Buffer
	if err := doc.RenderJSON(&buf); err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"CHAT_SESSION_ID", "TASK_ID", "PROJECT_ID", "TASK_TYPE", "messages"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %s in %s", key, buf.String())
		}
	}
	record := decoded["messages"].([]any)[0].(map[string]any)
	if record["MEMBER_ROLE"] != "HANDLER" || record["MESSAGE_CONTENT"] != "Hello" || record["MESSAGE_TYPE"] != "TEXT" {
		t.Fatalf("record = %v", record)
	}
}

func TestRenderWorkbook(t *testing.T) {
	f := newFixture(t, 0)
	s := f.openSession(t)
	text := f.send(t, s.ID, "u1", ContentTypeText, "Hello")
	file := f.send(t, s.ID, "u2", ContentTypeFile, "http://files/a.png")

	doc, err := f.messages.ExportLog(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("ExportLog: %v", err)
	}
	var buf bytes.Buffer
	if err := doc.RenderWorkbook(&buf); err != nil {
		t.Fatalf("RenderWorkbook: %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(messagesSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(rows))
	}
	if rows[0][0] != "MESSAGE_ID" || rows[0][2] != "MEMBER_ROLE" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != text.ID || rows[1][2] != "INITIATOR" || rows[1][4] != "Hello" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][0] != file.ID || rows[2][3] != "FILE" || rows[2][5] != "http://files/a.png" {
		t.Fatalf("row 2 = %v", rows[2])
	}

	id, err := wb.GetCellValue(sessionSheet, "B1")
	if err != nil || id != s.ID {
		t.Fatalf("session id cell = %q, %v", id, err)
	}
}
