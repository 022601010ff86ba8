package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"issuechat/infrastructure"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS archived_messages (
	chat_session_id TEXT    NOT NULL,
	id              TEXT    NOT NULL,
	created_at      INTEGER NOT NULL,
	compression     INTEGER NOT NULL,
	raw_size        INTEGER NOT NULL,
	body            BLOB    NOT NULL,
	PRIMARY KEY (chat_session_id, id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS archived_messages_id ON archived_messages (id);
CREATE INDEX IF NOT EXISTS archived_messages_order ON archived_messages (chat_session_id, created_at, id);
`

const archiveColumns = "chat_session_id, id, compression, raw_size, body"

// archivedBody is the CBOR payload of an archived row. Integer keys keep the
// encoding compact; timestamps are Unix nanoseconds.
type archivedBody struct {
	SenderID    string `cbor:"1,keyasint"`
	ContentType string `cbor:"2,keyasint"`
	Content     string `cbor:"3,keyasint,omitempty"`
	URL         string `cbor:"4,keyasint,omitempty"`
	CreatedAt   int64  `cbor:"5,keyasint"`
	UpdatedAt   int64  `cbor:"6,keyasint"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("messaging: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("messaging: CBOR decoder initialization failed: " + err.Error())
	}
}

type ArchiveConfig struct {
	// Path of the SQLite database file. The parent directory must exist.
	Path        string
	Compression Compression
	// PoolSize defaults to 4.
	PoolSize int
	Logger   *slog.Logger
}

// ArchiveStore is the SQLite-backed tier for closed or exported
// conversations. Each row holds one message encoded as CBOR and compressed.
type ArchiveStore struct {
	pool        *sqlitex.Pool
	compression Compression
	logger      *slog.Logger
	path        string
}

func OpenArchiveStore(ctx context.Context, cfg ArchiveConfig) (*ArchiveStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("archive store: Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	logger := infrastructure.Discard(cfg.Logger)

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareArchiveConn,
	})
	if err != nil {
		return nil, fmt.Errorf("archive store: opening %s: %w", cfg.Path, err)
	}

	store := &ArchiveStore{
		pool:        pool,
		compression: cfg.Compression,
		logger:      logger,
		path:        cfg.Path,
	}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("archive store opened", "path", cfg.Path, "pool_size", poolSize, "compression", cfg.Compression)
	return store, nil
}

func prepareArchiveConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("archive store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *ArchiveStore) migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("archive store: take: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, archiveSchema, nil); err != nil {
		return fmt.Errorf("archive store: creating schema: %w", err)
	}
	return nil
}

func (s *ArchiveStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("archive store: closing %s: %w", s.path, err)
	}
	s.logger.Info("archive store closed", "path", s.path)
	return nil
}

// withConn borrows a connection for the duration of fn.
func (s *ArchiveStore) withConn(ctx context.Context, name string, fn func(conn *sqlite.Conn) error) error {
	return infrastructure.TimeOperation(ctx, s.logger, name, func() error {
		conn, err := s.pool.Take(ctx)
		if err != nil {
			return err
		}
		defer s.pool.Put(conn)
		return fn(conn)
	})
}

func (s *ArchiveStore) encode(m *ChatMessage) (Compression, int, []byte, error) {
	raw, err := cborEncMode.Marshal(archivedBody{
		SenderID:    m.SenderID,
		ContentType: string(m.ContentType),
		Content:     m.Content,
		URL:         m.URL,
		CreatedAt:   m.CreatedAt.UnixNano(),
		UpdatedAt:   m.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return 0, 0, nil, fmt.Errorf("encoding message %s: %w", m.ID, err)
	}
	tag, body, err := compressBody(raw, s.compression)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("compressing message %s: %w", m.ID, err)
	}
	return tag, len(raw), body, nil
}

func decodeRow(stmt *sqlite.Stmt) (*ChatMessage, error) {
	id := stmt.ColumnText(1)
	packed := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, packed)

	raw, err := decompressBody(packed, Compression(stmt.ColumnInt(2)), stmt.ColumnInt(3))
	if err != nil {
		return nil, fmt.Errorf("decoding archived message %s: %w", id, err)
	}
	var body archivedBody
	if err := cborDecMode.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decoding archived message %s: %w", id, err)
	}
	return &ChatMessage{
		ID:            id,
		ChatSessionID: stmt.ColumnText(0),
		SenderID:      body.SenderID,
		ContentType:   ContentType(body.ContentType),
		Content:       body.Content,
		URL:           body.URL,
		CreatedAt:     time.Unix(0, body.CreatedAt).UTC(),
		UpdatedAt:     time.Unix(0, body.UpdatedAt).UTC(),
	}, nil
}

func (s *ArchiveStore) insert(conn *sqlite.Conn, m *ChatMessage) error {
	tag, rawSize, body, err := s.encode(m)
	if err != nil {
		return err
	}
	return sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO archived_messages (chat_session_id, id, created_at, compression, raw_size, body)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{m.ChatSessionID, m.ID, m.CreatedAt.UnixNano(), int64(tag), int64(rawSize), body},
		})
}

func (s *ArchiveStore) Save(ctx context.Context, message *ChatMessage) error {
	err := s.withConn(ctx, "messages.archive.save", func(conn *sqlite.Conn) error {
		return s.insert(conn, message)
	})
	return infrastructure.StoreFailure(err, "failed to archive chat message %s", message.ID)
}

// SaveAll writes every message in one IMMEDIATE transaction. Rerunning it
// with the same messages leaves the archive unchanged.
func (s *ArchiveStore) SaveAll(ctx context.Context, messages []*ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	err := s.withConn(ctx, "messages.archive.save_all", func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)
		for _, m := range messages {
			if err := s.insert(conn, m); err != nil {
				return err
			}
		}
		return nil
	})
	return infrastructure.StoreFailure(err, "failed to archive %d chat messages", len(messages))
}

func (s *ArchiveStore) query(ctx context.Context, name, query string, args ...any) ([]*ChatMessage, error) {
	var messages []*ChatMessage
	err := s.withConn(ctx, name, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				m, err := decodeRow(stmt)
				if err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			},
		})
	})
	return messages, err
}

func (s *ArchiveStore) Find(ctx context.Context, sessionID, messageID string) (*ChatMessage, error) {
	messages, err := s.query(ctx, "messages.archive.find",
		"SELECT "+archiveColumns+" FROM archived_messages WHERE chat_session_id = ? AND id = ?",
		sessionID, messageID)
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to read archived chat message %s", messageID)
	}
	if len(messages) == 0 {
		return nil, messageNotFound(messageID)
	}
	return messages[0], nil
}

func (s *ArchiveStore) Lookup(ctx context.Context, messageID string) (*ChatMessage, error) {
	messages, err := s.query(ctx, "messages.archive.lookup",
		"SELECT "+archiveColumns+" FROM archived_messages WHERE id = ? LIMIT 1",
		messageID)
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to read archived chat message %s", messageID)
	}
	if len(messages) == 0 {
		return nil, messageNotFound(messageID)
	}
	return messages[0], nil
}

func (s *ArchiveStore) Update(ctx context.Context, message *ChatMessage) error {
	var changed int
	err := s.withConn(ctx, "messages.archive.update", func(conn *sqlite.Conn) error {
		tag, rawSize, body, err := s.encode(message)
		if err != nil {
			return err
		}
		err = sqlitex.Execute(conn,
			`UPDATE archived_messages SET compression = ?, raw_size = ?, body = ?
			 WHERE chat_session_id = ? AND id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{int64(tag), int64(rawSize), body, message.ChatSessionID, message.ID},
			})
		changed = conn.Changes()
		return err
	})
	if err != nil {
		return infrastructure.StoreFailure(err, "failed to update archived chat message %s", message.ID)
	}
	if changed == 0 {
		return messageNotFound(message.ID)
	}
	return nil
}

func (s *ArchiveStore) exec(ctx context.Context, name, query string, args ...any) (int, error) {
	var changed int
	err := s.withConn(ctx, name, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
		changed = conn.Changes()
		return err
	})
	return changed, err
}

func (s *ArchiveStore) Delete(ctx context.Context, sessionID, messageID string) (bool, error) {
	n, err := s.exec(ctx, "messages.archive.delete",
		"DELETE FROM archived_messages WHERE chat_session_id = ? AND id = ?", sessionID, messageID)
	if err != nil {
		return false, infrastructure.StoreFailure(err, "failed to delete archived chat message %s", messageID)
	}
	return n > 0, nil
}

func (s *ArchiveStore) DeleteMany(ctx context.Context, sessionID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	total := 0
	err := s.withConn(ctx, "messages.archive.delete_many", func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)
		for _, id := range messageIDs {
			err := sqlitex.Execute(conn,
				"DELETE FROM archived_messages WHERE chat_session_id = ? AND id = ?",
				&sqlitex.ExecOptions{Args: []any{sessionID, id}})
			if err != nil {
				return err
			}
			total += conn.Changes()
		}
		return nil
	})
	if err != nil {
		return 0, infrastructure.StoreFailure(err, "failed to delete archived messages of chat session %s", sessionID)
	}
	return total, nil
}

func (s *ArchiveStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	n, err := s.exec(ctx, "messages.archive.delete_by_session",
		"DELETE FROM archived_messages WHERE chat_session_id = ?", sessionID)
	if err != nil {
		return 0, infrastructure.StoreFailure(err, "failed to delete archived messages of chat session %s", sessionID)
	}
	return n, nil
}

func (s *ArchiveStore) FindBySession(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	messages, err := s.query(ctx, "messages.archive.find_by_session",
		"SELECT "+archiveColumns+" FROM archived_messages WHERE chat_session_id = ? ORDER BY created_at, id",
		sessionID)
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to list archived messages of chat session %s", sessionID)
	}
	return messages, nil
}

func (s *ArchiveStore) FindAll(ctx context.Context) ([]*ChatMessage, error) {
	messages, err := s.query(ctx, "messages.archive.find_all",
		"SELECT "+archiveColumns+" FROM archived_messages ORDER BY chat_session_id, created_at, id")
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to list archived chat messages")
	}
	return messages, nil
}
