package messaging

import (
	"context"

	"issuechat/infrastructure"
)

// Store is the contract shared by the active and archive tiers. Messages are
// keyed by (ChatSessionID, ID); Lookup finds a message by ID alone.
type Store interface {
	Save(ctx context.Context, message *ChatMessage) error
	Find(ctx context.Context, sessionID, messageID string) (*ChatMessage, error)
	Lookup(ctx context.Context, messageID string) (*ChatMessage, error)
	Update(ctx context.Context, message *ChatMessage) error
	Delete(ctx context.Context, sessionID, messageID string) (bool, error)
	FindBySession(ctx context.Context, sessionID string) ([]*ChatMessage, error)
	FindAll(ctx context.Context) ([]*ChatMessage, error)

	// SaveAll stores messages atomically, replacing rows with the same key.
	SaveAll(ctx context.Context, messages []*ChatMessage) error
	// DeleteMany removes the listed messages of one session.
	DeleteMany(ctx context.Context, sessionID string, messageIDs []string) (int, error)
	DeleteBySession(ctx context.Context, sessionID string) (int, error)
}

func messageNotFound(messageID string) error {
	return infrastructure.NotFound("ChatMessage with ID %s not found", messageID)
}
