package messaging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"issuechat/infrastructure"
)

type messageRecord struct {
	ChatSessionID string    `gorm:"column:chat_session_id;type:uuid;primaryKey;index:idx_chat_messages_order,priority:1"`
	ID            string    `gorm:"column:id;type:uuid;primaryKey;index:idx_chat_messages_id"`
	SenderID      string    `gorm:"column:sender_id;not null"`
	ContentType   string    `gorm:"column:content_type;type:varchar(8);not null"`
	Content       *string   `gorm:"column:content;type:text"`
	URL           *string   `gorm:"column:url;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_chat_messages_order,priority:2"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (messageRecord) TableName() string {
	return "chat_messages"
}

// Models returns the rows owned by the active tier for schema migration.
func Models() []any {
	return []any{&messageRecord{}}
}

func toRecord(m *ChatMessage) *messageRecord {
	r := &messageRecord{
		ChatSessionID: m.ChatSessionID,
		ID:            m.ID,
		SenderID:      m.SenderID,
		ContentType:   string(m.ContentType),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.ContentType == ContentTypeText {
		r.Content = &m.Content
	} else {
		r.URL = &m.URL
	}
	return r
}

func (r *messageRecord) toMessage() *ChatMessage {
	m := &ChatMessage{
		ID:            r.ID,
		ChatSessionID: r.ChatSessionID,
		SenderID:      r.SenderID,
		ContentType:   ContentType(r.ContentType),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.Content != nil {
		m.Content = *r.Content
	}
	if r.URL != nil {
		m.URL = *r.URL
	}
	return m
}

// ActiveStore is the Postgres-backed tier for open conversations.
type ActiveStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewActiveStore(db *gorm.DB, logger *slog.Logger) *ActiveStore {
	return &ActiveStore{db: db, logger: infrastructure.Discard(logger)}
}

func (s *ActiveStore) run(ctx context.Context, name string, op func(db *gorm.DB) error) error {
	return infrastructure.TimeOperation(ctx, s.logger, name, func() error {
		return op(s.db.WithContext(ctx))
	})
}

func (s *ActiveStore) Save(ctx context.Context, message *ChatMessage) error {
	err := s.run(ctx, "messages.active.save", func(db *gorm.DB) error {
		return db.Create(toRecord(message)).Error
	})
	return infrastructure.StoreFailure(err, "failed to save chat message %s", message.ID)
}

func (s *ActiveStore) SaveAll(ctx context.Context, messages []*ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	records := make([]*messageRecord, len(messages))
	for i, m := range messages {
		records[i] = toRecord(m)
	}
	err := s.run(ctx, "messages.active.save_all", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error
	})
	return infrastructure.StoreFailure(err, "failed to save %d chat messages", len(messages))
}

func (s *ActiveStore) take(ctx context.Context, name, messageID string, scope func(db *gorm.DB) *gorm.DB) (*ChatMessage, error) {
	var record messageRecord
	err := s.run(ctx, name, func(db *gorm.DB) error {
		return scope(db).Take(&record).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, messageNotFound(messageID)
	}
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to read chat message %s", messageID)
	}
	return record.toMessage(), nil
}

// validIDs reports whether every id fits the uuid columns. Other values
// cannot match a row and would make Postgres fail the whole statement.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func (s *ActiveStore) Find(ctx context.Context, sessionID, messageID string) (*ChatMessage, error) {
	if !validIDs(sessionID, messageID) {
		return nil, messageNotFound(messageID)
	}
	return s.take(ctx, "messages.active.find", messageID, func(db *gorm.DB) *gorm.DB {
		return db.Where("chat_session_id = ? AND id = ?", sessionID, messageID)
	})
}

func (s *ActiveStore) Lookup(ctx context.Context, messageID string) (*ChatMessage, error) {
	if !validIDs(messageID) {
		return nil, messageNotFound(messageID)
	}
	return s.take(ctx, "messages.active.lookup", messageID, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", messageID)
	})
}

func (s *ActiveStore) Update(ctx context.Context, message *ChatMessage) error {
	if !validIDs(message.ChatSessionID, message.ID) {
		return messageNotFound(message.ID)
	}
	record := toRecord(message)
	var affected int64
	err := s.run(ctx, "messages.active.update", func(db *gorm.DB) error {
		result := db.Model(&messageRecord{}).
			Where("chat_session_id = ? AND id = ?", message.ChatSessionID, message.ID).
			Updates(map[string]any{
				"content":    record.Content,
				"url":        record.URL,
				"updated_at": record.UpdatedAt,
			})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return infrastructure.StoreFailure(err, "failed to update chat message %s", message.ID)
	}
	if affected == 0 {
		return messageNotFound(message.ID)
	}
	return nil
}

func (s *ActiveStore) delete(ctx context.Context, name string, scope func(db *gorm.DB) *gorm.DB) (int, error) {
	var affected int64
	err := s.run(ctx, name, func(db *gorm.DB) error {
		result := scope(db).Delete(&messageRecord{})
		affected = result.RowsAffected
		return result.Error
	})
	return int(affected), err
}

func (s *ActiveStore) Delete(ctx context.Context, sessionID, messageID string) (bool, error) {
	if !validIDs(sessionID, messageID) {
		return false, nil
	}
	n, err := s.delete(ctx, "messages.active.delete", func(db *gorm.DB) *gorm.DB {
		return db.Where("chat_session_id = ? AND id = ?", sessionID, messageID)
	})
	if err != nil {
		return false, infrastructure.StoreFailure(err, "failed to delete chat message %s", messageID)
	}
	return n > 0, nil
}

func (s *ActiveStore) DeleteMany(ctx context.Context, sessionID string, messageIDs []string) (int, error) {
	if !validIDs(sessionID) {
		return 0, nil
	}
	messageIDs = slices.DeleteFunc(slices.Clone(messageIDs), func(id string) bool { return !validIDs(id) })
	if len(messageIDs) == 0 {
		return 0, nil
	}
	n, err := s.delete(ctx, "messages.active.delete_many", func(db *gorm.DB) *gorm.DB {
		return db.Where("chat_session_id = ? AND id IN ?", sessionID, messageIDs)
	})
	return n, infrastructure.StoreFailure(err, "failed to delete messages of chat session %s", sessionID)
}

func (s *ActiveStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	if !validIDs(sessionID) {
		return 0, nil
	}
	n, err := s.delete(ctx, "messages.active.delete_by_session", func(db *gorm.DB) *gorm.DB {
		return db.Where("chat_session_id = ?", sessionID)
	})
	return n, infrastructure.StoreFailure(err, "failed to delete messages of chat session %s", sessionID)
}

func (s *ActiveStore) list(ctx context.Context, name string, scope func(db *gorm.DB) *gorm.DB) ([]*ChatMessage, error) {
	var records []messageRecord
	err := s.run(ctx, name, func(db *gorm.DB) error {
		return scope(db).Order("chat_session_id, created_at, id").Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	messages := make([]*ChatMessage, len(records))
	for i := range records {
		messages[i] = records[i].toMessage()
	}
	return messages, nil
}

func (s *ActiveStore) FindBySession(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	if !validIDs(sessionID) {
		return nil, nil
	}
	messages, err := s.list(ctx, "messages.active.find_by_session", func(db *gorm.DB) *gorm.DB {
		return db.Where("chat_session_id = ?", sessionID)
	})
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to list messages of chat session %s", sessionID)
	}
	return messages, nil
}

func (s *ActiveStore) FindAll(ctx context.Context) ([]*ChatMessage, error) {
	messages, err := s.list(ctx, "messages.active.find_all", func(db *gorm.DB) *gorm.DB { return db })
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to list chat messages")
	}
	return messages, nil
}
