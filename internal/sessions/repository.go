package sessions

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"issuechat/infrastructure"
)

// Repository is the durable store for chat sessions. Update and Delete hold
// an exclusive per-session lock while their callback runs; View holds a
// shared one, so a View callback never overlaps an Update of the same
// session.
type Repository interface {
	Create(ctx context.Context, session *ChatSession) error
	Get(ctx context.Context, id string) (*ChatSession, error)
	ListByProject(ctx context.Context, projectID string) ([]*ChatSession, error)
	ListByParticipant(ctx context.Context, userID string) ([]*ChatSession, error)

	Update(ctx context.Context, id string, mutate func(*ChatSession) error) (*ChatSession, error)
	View(ctx context.Context, id string, fn func(*ChatSession) error) error
	Delete(ctx context.Context, id string, beforeDelete func(*ChatSession) error) (bool, error)
}

type repository struct {
	*sql.DB
	saver    Saver
	provider Provider
	updater  Updater
	deleter  Deleter
	logger   *slog.Logger
}

func NewRepository(db *sql.DB, storage *PostgresStorage, logger *slog.Logger) Repository {
	return &repository{
		DB:       db,
		saver:    storage,
		provider: storage,
		updater:  storage,
		deleter:  storage,
		logger:   infrastructure.Discard(logger),
	}
}

func (r *repository) Create(ctx context.Context, session *ChatSession) error {
	err := infrastructure.TimeOperation(ctx, r.logger, "sessions.create", func() error {
		return infrastructure.WithTransaction(r.DB, ctx, func(tx *sql.Tx) error {
			if err := r.saver.SaveSession(ctx, tx, session); err != nil {
				return err
			}
			return r.saver.SaveParticipants(ctx, tx, session)
		})
	})
	return infrastructure.StoreFailure(err, "failed to create chat session %s", session.ID)
}

// checkID rejects IDs the uuid column could never hold, before they reach
// Postgres as a syntax error.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return infrastructure.NotFound("ChatSession with ID %s not found", id)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (session *ChatSession, err error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	err = infrastructure.TimeOperation(ctx, r.logger, "sessions.get", func() error {
		session, err = r.provider.SessionByID(ctx, r.DB, id, lockNone)
		return err
	})
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to get chat session %s", id)
	}
	return session, nil
}

func (r *repository) ListByProject(ctx context.Context, projectID string) (sessions []*ChatSession, err error) {
	err = infrastructure.TimeOperation(ctx, r.logger, "sessions.list_by_project", func() error {
		sessions, err = r.provider.SessionsByProject(ctx, r.DB, projectID)
		return err
	})
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to list chat sessions of project %s", projectID)
	}
	return sessions, nil
}

func (r *repository) ListByParticipant(ctx context.Context, userID string) (sessions []*ChatSession, err error) {
	err = infrastructure.TimeOperation(ctx, r.logger, "sessions.list_by_participant", func() error {
		sessions, err = r.provider.SessionsByParticipant(ctx, r.DB, userID)
		return err
	})
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to list chat sessions of participant %s", userID)
	}
	return sessions, nil
}

func (r *repository) Update(ctx context.Context, id string, mutate func(*ChatSession) error) (*ChatSession, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var updated *ChatSession
	err := infrastructure.TimeOperation(ctx, r.logger, "sessions.update", func() error {
		return infrastructure.WithTransaction(r.DB, ctx, func(tx *sql.Tx) error {
			session, err := r.provider.SessionByID(ctx, tx, id, lockExclusive)
			if err != nil {
				return err
			}
			if err := mutate(session); err != nil {
				return err
			}
			if err := r.updater.UpdateSession(ctx, tx, session); err != nil {
				return err
			}
			if err := r.saver.SaveParticipants(ctx, tx, session); err != nil {
				return err
			}
			updated = session
			return nil
		})
	})
	if err != nil {
		return nil, infrastructure.StoreFailure(err, "failed to update chat session %s", id)
	}
	return updated, nil
}

// View runs fn while holding FOR SHARE on the session row. The transaction
// stays open until fn returns, which blocks a concurrent FOR UPDATE.
func (r *repository) View(ctx context.Context, id string, fn func(*ChatSession) error) error {
	if err := checkID(id); err != nil {
		return err
	}
	err := infrastructure.WithTransaction(r.DB, ctx, func(tx *sql.Tx) error {
		session, err := r.provider.SessionByID(ctx, tx, id, lockShared)
		if err != nil {
			return err
		}
		return fn(session)
	})
	return infrastructure.StoreFailure(err, "failed to read chat session %s", id)
}

func (r *repository) Delete(ctx context.Context, id string, beforeDelete func(*ChatSession) error) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	var deleted bool
	err := infrastructure.TimeOperation(ctx, r.logger, "sessions.delete", func() error {
		return infrastructure.WithTransaction(r.DB, ctx, func(tx *sql.Tx) error {
			session, err := r.provider.SessionByID(ctx, tx, id, lockExclusive)
			if err != nil {
				return err
			}
			if beforeDelete != nil {
				if err := beforeDelete(session); err != nil {
					return err
				}
			}
			deleted, err = r.deleter.DeleteSession(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		return false, infrastructure.StoreFailure(err, "failed to delete chat session %s", id)
	}
	return deleted, nil
}
