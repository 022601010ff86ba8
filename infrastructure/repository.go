package infrastructure

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// TimeOperation executes an operation and logs its execution time
func TimeOperation(ctx context.Context, logger *slog.Logger, name string, operation func() error) error {
	start := time.Now()
	err := operation()
	elapsed := time.Since(start)
	if logger == nil {
		return err
	}
	if err != nil {
		logger.Log(ctx, slog.LevelWarn, "store operation failed", "operation", name, "elapsed", elapsed, "error", err)
		return err
	}
	logger.Log(ctx, slog.LevelDebug, "store operation", "operation", name, "elapsed", elapsed)
	return nil
}

// WithTransaction handles a database transaction and executes the given operation
func WithTransaction(db *sql.DB, ctx context.Context, operation func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return StoreFailure(err, "failed to start transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after Rollback
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Log(ctx, slog.LevelError, "Error while rolling back transaction", "error", rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			err = StoreFailure(cErr, "failed to commit transaction")
		}
	}()

	err = operation(tx)
	return err
}

// Discard returns logger, or a logger that drops everything when logger is nil.
func Discard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
