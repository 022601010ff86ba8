package messaging

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"issuechat/internal/sessions"
)

// RoleUnknown labels a sender that cannot be resolved against the session.
const RoleUnknown = "UNKNOWN"

type ExportDocument struct {
	ChatSessionID string            `json:"CHAT_SESSION_ID"`
	TaskID        string            `json:"TASK_ID"`
	ProjectID     string            `json:"PROJECT_ID"`
	TaskType      sessions.TaskType `json:"TASK_TYPE"`
	Messages      []ExportRecord    `json:"messages"`
}

type ExportRecord struct {
	MessageID   string      `json:"MESSAGE_ID"`
	SenderID    string      `json:"SENDER_ID"`
	MemberRole  string      `json:"MEMBER_ROLE"`
	MessageType ContentType `json:"MESSAGE_TYPE"`
	Content     string      `json:"MESSAGE_CONTENT,omitempty"`
	URL         string      `json:"URL,omitempty"`
	DateTime    time.Time   `json:"DATETIME"`
}

func buildExport(s *sessions.ChatSession, messages []*ChatMessage) *ExportDocument {
	ordered := slices.Clone(messages)
	slices.SortStableFunc(ordered, func(a, b *ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	doc := &ExportDocument{
		ChatSessionID: s.ID,
		TaskID:        s.TaskID,
		ProjectID:     s.ProjectID,
		TaskType:      s.TaskType,
		Messages:      make([]ExportRecord, 0, len(ordered)),
	}
	for _, m := range ordered {
		role := RoleUnknown
		if r, err := s.ResolveRole(m.SenderID); err == nil {
			role = string(r)
		}
		doc.Messages = append(doc.Messages, ExportRecord{
			MessageID:   m.ID,
			SenderID:    m.SenderID,
			MemberRole:  role,
			MessageType: m.ContentType,
			Content:     m.Content,
			URL:         m.URL,
			DateTime:    m.CreatedAt,
		})
	}
	return doc
}

func (d *ExportDocument) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

var workbookHeaders = []string{"MESSAGE_ID", "SENDER_ID", "MEMBER_ROLE", "MESSAGE_TYPE", "MESSAGE_CONTENT", "URL", "DATETIME"}

const (
	sessionSheet  = "Session"
	messagesSheet = "Messages"
)

// RenderWorkbook writes the document as an XLSX file with a session sheet
// and one row per message on the messages sheet.
func (d *ExportDocument) RenderWorkbook(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sessionSheet); err != nil {
		return err
	}
	meta := [][2]string{
		{"CHAT_SESSION_ID", d.ChatSessionID},
		{"TASK_ID", d.TaskID},
		{"PROJECT_ID", d.ProjectID},
		{"TASK_TYPE", string(d.TaskType)},
	}
	for i, kv := range meta {
		row := i + 1
		if err := f.SetCellValue(sessionSheet, fmt.Sprintf("A%d", row), kv[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(sessionSheet, fmt.Sprintf("B%d", row), kv[1]); err != nil {
			return err
		}
	}

	index, err := f.NewSheet(messagesSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	for i, header := range workbookHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(messagesSheet, cell, header); err != nil {
			return err
		}
	}
	for i, rec := range d.Messages {
		values := []any{
			rec.MessageID,
			rec.SenderID,
			rec.MemberRole,
			string(rec.MessageType),
			rec.Content,
			rec.URL,
			rec.DateTime.Format(time.RFC3339Nano),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(messagesSheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
