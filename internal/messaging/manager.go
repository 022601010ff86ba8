package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"issuechat/infrastructure"
	"issuechat/internal/sessions"
)

// DefaultMaxContentLength caps TEXT content, counted in characters.
const DefaultMaxContentLength = 65535

// SessionDirectory is the part of the session manager the message manager
// depends on.
type SessionDirectory interface {
	WithOpenSession(ctx context.Context, sessionID string, fn func(*sessions.ChatSession) error) error
	ViewSession(ctx context.Context, sessionID string, fn func(*sessions.ChatSession) error) error
	LockSession(ctx context.Context, sessionID string, fn func(*sessions.ChatSession) error) error
}

// Archiver moves a session's messages out of the active tier.
type Archiver interface {
	ArchiveSession(ctx context.Context, sessionID string) (int, error)
}

type Manager struct {
	sessions         SessionDirectory
	store            Store
	archiver         Archiver
	maxContentLength int
	logger           *slog.Logger
	now              func() time.Time
}

func NewManager(directory SessionDirectory, store Store, archiver Archiver, maxContentLength int, logger *slog.Logger) *Manager {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	return &Manager{
		sessions:         directory,
		store:            store,
		archiver:         archiver,
		maxContentLength: maxContentLength,
		logger:           infrastructure.Discard(logger),
		now:              func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// SendMessage appends a message to an open session. For TEXT messages
// payload is the content; for FILE messages it is the URL.
func (m *Manager) SendMessage(ctx context.Context, sessionID, senderID string, contentType ContentType, payload string) (*ChatMessage, error) {
	if strings.TrimSpace(senderID) == "" {
		return nil, infrastructure.InvalidArgument("Sender ID is required")
	}
	if contentType == "" {
		return nil, infrastructure.InvalidArgument("Content type is required")
	}
	if !contentType.Valid() {
		return nil, infrastructure.InvalidArgument("Unknown content type %s", contentType)
	}
	if err := m.validatePayload(contentType, payload); err != nil {
		return nil, err
	}

	var message *ChatMessage
	err := m.sessions.WithOpenSession(ctx, sessionID, func(s *sessions.ChatSession) error {
		if !s.Participants.Has(senderID) {
			return infrastructure.InvalidArgument("Sender %s is not a participant of session %s", senderID, s.ID)
		}
		id, err := uuid.NewV7()
		if err != nil {
			return infrastructure.StoreFailure(err, "failed to generate message ID")
		}
		now := m.now()
		message = &ChatMessage{
			ID:            id.String(),
			ChatSessionID: s.ID,
			SenderID:      senderID,
			ContentType:   contentType,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if contentType == ContentTypeText {
			message.Content = payload
		} else {
			message.URL = payload
		}
		return m.store.Save(ctx, message)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "chat message sent",
		"session_id", sessionID,
		"message_id", message.ID,
		"sender_id", senderID,
		"content_type", contentType,
	)
	return message, nil
}

// Payloads must survive both tiers verbatim: Postgres text refuses NUL and
// the archive codec refuses invalid UTF-8.
func (m *Manager) validatePayload(contentType ContentType, payload string) error {
	if contentType == ContentTypeFile {
		if strings.TrimSpace(payload) == "" {
			return infrastructure.InvalidArgument("Image URL cannot be null or empty")
		}
		return checkEncoding("Image URL", payload)
	}
	if strings.TrimSpace(payload) == "" {
		return infrastructure.InvalidArgument("Content cannot be null or empty")
	}
	if err := checkEncoding("Content", payload); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(payload); n > m.maxContentLength {
		return infrastructure.InvalidArgument("Content length %d exceeds the maximum of %d characters", n, m.maxContentLength)
	}
	return nil
}

func checkEncoding(field, payload string) error {
	if !utf8.ValidString(payload) {
		return infrastructure.InvalidArgument("%s must be valid UTF-8", field)
	}
	if strings.ContainsRune(payload, 0) {
		return infrastructure.InvalidArgument("%s cannot contain NUL characters", field)
	}
	return nil
}

// UpdateTextMessage replaces the content of a TEXT message.
func (m *Manager) UpdateTextMessage(ctx context.Context, messageID, content string) (*ChatMessage, error) {
	return m.edit(ctx, messageID, func(msg *ChatMessage) error {
		if err := m.validatePayload(ContentTypeText, content); err != nil {
			return err
		}
		if msg.ContentType != ContentTypeText {
			return infrastructure.InvalidArgument("Cannot update non-text message with updateTextChatMessage() method")
		}
		msg.Content = content
		return nil
	})
}

// UpdateFileURL replaces the URL of a FILE message.
func (m *Manager) UpdateFileURL(ctx context.Context, messageID, url string) (*ChatMessage, error) {
	return m.edit(ctx, messageID, func(msg *ChatMessage) error {
		if err := m.validatePayload(ContentTypeFile, url); err != nil {
			return err
		}
		if msg.ContentType != ContentTypeFile {
			return infrastructure.InvalidArgument("Cannot update non-image message with updateImageURL() method")
		}
		msg.URL = url
		return nil
	})
}

// edit applies change to the stored message under the owning session's
// shared lock, so it cannot interleave with archiving or deletion.
func (m *Manager) edit(ctx context.Context, messageID string, change func(*ChatMessage) error) (*ChatMessage, error) {
	found, err := m.store.Lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	var updated *ChatMessage
	err = m.sessions.ViewSession(ctx, found.ChatSessionID, func(*sessions.ChatSession) error {
		current, err := m.store.Find(ctx, found.ChatSessionID, messageID)
		if err != nil {
			return err
		}
		if err := change(current); err != nil {
			return err
		}
		current.UpdatedAt = m.now()
		if err := m.store.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, m.orphaned(err, messageID)
	}
	m.logger.InfoContext(ctx, "chat message updated", "session_id", updated.ChatSessionID, "message_id", messageID)
	return updated, nil
}

// orphaned reports a message whose session vanished mid-call as missing.
func (m *Manager) orphaned(err error, messageID string) error {
	if infrastructure.IsNotFound(err) {
		return messageNotFound(messageID)
	}
	return err
}

func (m *Manager) DeleteMessage(ctx context.Context, messageID string) error {
	found, err := m.store.Lookup(ctx, messageID)
	if err != nil {
		return err
	}
	err = m.sessions.ViewSession(ctx, found.ChatSessionID, func(*sessions.ChatSession) error {
		deleted, err := m.store.Delete(ctx, found.ChatSessionID, messageID)
		if err != nil {
			return err
		}
		if !deleted {
			return messageNotFound(messageID)
		}
		return nil
	})
	if err != nil {
		return m.orphaned(err, messageID)
	}
	m.logger.InfoContext(ctx, "chat message deleted", "session_id", found.ChatSessionID, "message_id", messageID)
	return nil
}

func (m *Manager) GetMessage(ctx context.Context, messageID string) (*ChatMessage, error) {
	return m.store.Lookup(ctx, messageID)
}

// ListMessages returns the session's messages from both tiers in send order.
func (m *Manager) ListMessages(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	var messages []*ChatMessage
	err := m.sessions.ViewSession(ctx, sessionID, func(*sessions.ChatSession) error {
		var err error
		messages, err = m.store.FindBySession(ctx, sessionID)
		return err
	})
	return messages, err
}

// ExportLog builds the role-annotated transcript of a session. Roles are
// resolved against the participants at export time.
func (m *Manager) ExportLog(ctx context.Context, sessionID string) (*ExportDocument, error) {
	var doc *ExportDocument
	err := m.sessions.ViewSession(ctx, sessionID, func(s *sessions.ChatSession) error {
		messages, err := m.store.FindBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		doc = buildExport(s, messages)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ArchiveSession moves the session's messages to the archive tier under the
// session's exclusive lock. Calling it again moves nothing.
func (m *Manager) ArchiveSession(ctx context.Context, sessionID string) (int, error) {
	var moved int
	err := m.sessions.LockSession(ctx, sessionID, func(*sessions.ChatSession) error {
		var err error
		moved, err = m.archiver.ArchiveSession(ctx, sessionID)
		return err
	})
	return moved, err
}
