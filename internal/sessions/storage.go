package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"issuechat/infrastructure"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type lockMode int

const (
	lockNone lockMode = iota
	lockShared
	lockExclusive
)

func (m lockMode) clause() string {
	switch m {
	case lockShared:
		return " FOR SHARE"
	case lockExclusive:
		return " FOR UPDATE"
	default:
		return ""
	}
}

type Saver interface {
	SaveSession(ctx context.Context, tx *sql.Tx, session *ChatSession) error
	SaveParticipants(ctx context.Context, tx *sql.Tx, session *ChatSession) error
}

type Updater interface {
	UpdateSession(ctx context.Context, tx *sql.Tx, session *ChatSession) error
}

type Provider interface {
	SessionByID(ctx context.Context, q querier, id string, lock lockMode) (*ChatSession, error)
	SessionsByProject(ctx context.Context, q querier, projectID string) ([]*ChatSession, error)
	SessionsByParticipant(ctx context.Context, q querier, userID string) ([]*ChatSession, error)
}

type Deleter interface {
	DeleteSession(ctx context.Context, tx *sql.Tx, id string) (bool, error)
}

// sessionRow and participantRow describe the tables PostgresStorage reads
// and writes; they are handed to the schema migration.
type sessionRow struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	ProjectID string `gorm:"not null;index"`
	TaskID    string `gorm:"not null;index"`
	TaskType  string `gorm:"not null"`
	Status    string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "chat_sessions" }

type participantRow struct {
	SessionID string     `gorm:"primaryKey;type:uuid;uniqueIndex:idx_chat_single_initiator,where:role = 'INITIATOR'"`
	UserID    string     `gorm:"primaryKey"`
	Role      string     `gorm:"not null"`
	JoinedAt  time.Time  `gorm:"not null"`
	RemovedAt *time.Time `gorm:"index"`
}

func (participantRow) TableName() string { return "chat_session_participants" }

// Models lists the tables owned by the session store.
func Models() []any {
	return []any{&sessionRow{}, &participantRow{}}
}

type PostgresStorage struct {
	db *sql.DB
}

func NewSessionsPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (r *PostgresStorage) SaveSession(ctx context.Context, tx *sql.Tx, session *ChatSession) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, project_id, task_id, task_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.ProjectID, session.TaskID, string(session.TaskType), string(session.Status),
		session.CreatedAt, session.UpdatedAt)
	return err
}

// SaveParticipants upserts one row per current and former participant.
// Rows are never deleted so joined_at survives role changes.
func (r *PostgresStorage) SaveParticipants(ctx context.Context, tx *sql.Tx, session *ChatSession) error {
	const upsert = `
		INSERT INTO chat_session_participants (session_id, user_id, role, joined_at, removed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, removed_at = EXCLUDED.removed_at`

	for userID, role := range session.Participants.Roles() {
		if _, err := tx.ExecContext(ctx, upsert, session.ID, userID, string(role), session.UpdatedAt, nil); err != nil {
			return err
		}
	}
	for userID, removedAt := range session.Participants.Former() {
		if _, err := tx.ExecContext(ctx, upsert, session.ID, userID, string(RoleFormer), session.UpdatedAt, removedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresStorage) UpdateSession(ctx context.Context, tx *sql.Tx, session *ChatSession) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE chat_sessions SET task_type = $2, status = $3, updated_at = $4
		WHERE id = $1`,
		session.ID, string(session.TaskType), string(session.Status), session.UpdatedAt)
	return err
}

func (r *PostgresStorage) SessionByID(ctx context.Context, q querier, id string, lock lockMode) (*ChatSession, error) {
	session := &ChatSession{}
	var taskType, status string
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, task_id, task_type, status, created_at, updated_at
		FROM chat_sessions WHERE id = $1`+lock.clause(), id).
		Scan(&session.ID, &session.ProjectID, &session.TaskID, &taskType, &status, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.NotFound("ChatSession with ID %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	session.TaskType = TaskType(taskType)
	session.Status = Status(status)

	if err := r.attachParticipants(ctx, q, []*ChatSession{session}); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *PostgresStorage) SessionsByProject(ctx context.Context, q querier, projectID string) ([]*ChatSession, error) {
	return r.listSessions(ctx, q, `
		SELECT id, project_id, task_id, task_type, status, created_at, updated_at
		FROM chat_sessions WHERE project_id = $1
		ORDER BY created_at, id`, projectID)
}

func (r *PostgresStorage) SessionsByParticipant(ctx context.Context, q querier, userID string) ([]*ChatSession, error) {
	return r.listSessions(ctx, q, `
		SELECT s.id, s.project_id, s.task_id, s.task_type, s.status, s.created_at, s.updated_at
		FROM chat_sessions s
		JOIN chat_session_participants p ON p.session_id = s.id
		WHERE p.user_id = $1 AND p.removed_at IS NULL
		ORDER BY s.created_at, s.id`, userID)
}

func (r *PostgresStorage) DeleteSession(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_session_participants WHERE session_id = $1", id); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresStorage) listSessions(ctx context.Context, q querier, query string, arg string) ([]*ChatSession, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		session := &ChatSession{}
		var taskType, status string
		if err := rows.Scan(&session.ID, &session.ProjectID, &session.TaskID, &taskType, &status, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, err
		}
		session.TaskType = TaskType(taskType)
		session.Status = Status(status)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachParticipants(ctx, q, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// attachParticipants loads the participant rows of all given sessions in one
// query.
func (r *PostgresStorage) attachParticipants(ctx context.Context, q querier, sessions []*ChatSession) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}

	rows, err := q.QueryContext(ctx, `
		SELECT session_id, user_id, role, removed_at
		FROM chat_session_participants WHERE session_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	roles := make(map[string]map[string]ParticipantRole, len(sessions))
	former := make(map[string]map[string]time.Time)
	for rows.Next() {
		var sessionID, userID, role string
		var removedAt sql.NullTime
		if err := rows.Scan(&sessionID, &userID, &role, &removedAt); err != nil {
			return err
		}
		if removedAt.Valid {
			if former[sessionID] == nil {
				former[sessionID] = map[string]time.Time{}
			}
			former[sessionID][userID] = removedAt.Time
			continue
		}
		if roles[sessionID] == nil {
			roles[sessionID] = map[string]ParticipantRole{}
		}
		roles[sessionID][userID] = ParticipantRole(role)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range sessions {
		p, err := RestoreParticipants(s.ID, roles[s.ID], former[s.ID])
		if err != nil {
			return err
		}
		s.Participants = p
	}
	return nil
}
