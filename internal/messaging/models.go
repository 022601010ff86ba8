package messaging

import "time"

type ContentType string

const (
	ContentTypeText ContentType = "TEXT"
	ContentTypeFile ContentType = "FILE"
)

func (c ContentType) Valid() bool {
	return c == ContentTypeText || c == ContentTypeFile
}

// ChatMessage is a single entry in a session's conversation. Content is set
// for TEXT messages and URL for FILE messages; ContentType never changes
// after creation.
type ChatMessage struct {
	ID            string
	ChatSessionID string
	SenderID      string
	ContentType   ContentType
	Content       string
	URL           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (m *ChatMessage) Clone() *ChatMessage {
	c := *m
	return &c
}

// before orders messages by creation time, then by ID. Message IDs are
// UUIDv7 so the ID order follows insertion order within a process.
func before(a, b *ChatMessage) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
