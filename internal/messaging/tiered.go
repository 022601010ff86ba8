package messaging

import (
	"context"
	"log/slog"
	"slices"

	"issuechat/infrastructure"
)

// TieredStore presents the active and archive tiers as one Store. Writes of
// new messages go to the active tier; reads, edits and deletes check the
// active tier first and fall back to the archive.
type TieredStore struct {
	active  Store
	archive Store
	logger  *slog.Logger
}

func NewTieredStore(active, archive Store, logger *slog.Logger) *TieredStore {
	return &TieredStore{active: active, archive: archive, logger: infrastructure.Discard(logger)}
}

func (t *TieredStore) Save(ctx context.Context, message *ChatMessage) error {
	return t.active.Save(ctx, message)
}

func (t *TieredStore) SaveAll(ctx context.Context, messages []*ChatMessage) error {
	return t.active.SaveAll(ctx, messages)
}

func (t *TieredStore) Find(ctx context.Context, sessionID, messageID string) (*ChatMessage, error) {
	m, err := t.active.Find(ctx, sessionID, messageID)
	if infrastructure.IsNotFound(err) {
		return t.archive.Find(ctx, sessionID, messageID)
	}
	return m, err
}

func (t *TieredStore) Lookup(ctx context.Context, messageID string) (*ChatMessage, error) {
	m, err := t.active.Lookup(ctx, messageID)
	if infrastructure.IsNotFound(err) {
		return t.archive.Lookup(ctx, messageID)
	}
	return m, err
}

func (t *TieredStore) Update(ctx context.Context, message *ChatMessage) error {
	err := t.active.Update(ctx, message)
	if infrastructure.IsNotFound(err) {
		return t.archive.Update(ctx, message)
	}
	return err
}

func (t *TieredStore) Delete(ctx context.Context, sessionID, messageID string) (bool, error) {
	deleted, err := t.active.Delete(ctx, sessionID, messageID)
	if err != nil || deleted {
		return deleted, err
	}
	return t.archive.Delete(ctx, sessionID, messageID)
}

func (t *TieredStore) DeleteMany(ctx context.Context, sessionID string, messageIDs []string) (int, error) {
	n, err := t.active.DeleteMany(ctx, sessionID, messageIDs)
	if err != nil {
		return n, err
	}
	m, err := t.archive.DeleteMany(ctx, sessionID, messageIDs)
	return n + m, err
}

// DeleteBySession purges a session from both tiers. Rerunning it after a
// partial failure finishes the job.
func (t *TieredStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	archived, err := t.archive.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	active, err := t.active.DeleteBySession(ctx, sessionID)
	if err != nil {
		return archived, err
	}
	return archived + active, nil
}

func (t *TieredStore) FindBySession(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	return t.merge(func(s Store) ([]*ChatMessage, error) { return s.FindBySession(ctx, sessionID) })
}

func (t *TieredStore) FindAll(ctx context.Context) ([]*ChatMessage, error) {
	return t.merge(func(s Store) ([]*ChatMessage, error) { return s.FindAll(ctx) })
}

// merge reads both tiers. A message caught mid-archive can appear in both;
// the active copy wins.
func (t *TieredStore) merge(read func(Store) ([]*ChatMessage, error)) ([]*ChatMessage, error) {
	active, err := read(t.active)
	if err != nil {
		return nil, err
	}
	archived, err := read(t.archive)
	if err != nil {
		return nil, err
	}
	if len(archived) == 0 {
		return active, nil
	}

	seen := make(map[string]struct{}, len(active))
	for _, m := range active {
		seen[m.ChatSessionID+"/"+m.ID] = struct{}{}
	}
	all := make([]*ChatMessage, 0, len(active)+len(archived))
	all = append(all, active...)
	for _, m := range archived {
		if _, dup := seen[m.ChatSessionID+"/"+m.ID]; !dup {
			all = append(all, m)
		}
	}
	slices.SortStableFunc(all, func(a, b *ChatMessage) int {
		switch {
		case a.ChatSessionID < b.ChatSessionID:
			return -1
		case a.ChatSessionID > b.ChatSessionID:
			return 1
		case before(a, b):
			return -1
		case before(b, a):
			return 1
		}
		return 0
	})
	return all, nil
}

// ArchiveSession moves the session's active messages into the archive tier
// and reports how many were moved. Only the copied messages are removed from
// the active tier, so a message sent concurrently stays where it is.
func (t *TieredStore) ArchiveSession(ctx context.Context, sessionID string) (int, error) {
	messages, err := t.active.FindBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}
	if err := t.archive.SaveAll(ctx, messages); err != nil {
		return 0, err
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	moved, err := t.active.DeleteMany(ctx, sessionID, ids)
	if err != nil {
		return 0, err
	}
	t.logger.InfoContext(ctx, "chat session archived", "session_id", sessionID, "messages_moved", moved)
	return moved, nil
}
