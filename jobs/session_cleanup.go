package jobs

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CleanupExpiredSessions removes session audit rows whose expiry has
// passed. Redis expires the live sessions on its own; this keeps the
// postgres audit table from growing without bound.
func CleanupExpiredSessions(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return nil
	}
	tag, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		if logger != nil {
			logger.Error("cleanup sessions", slog.Any("error", err))
		}
		return err
	}
	if logger != nil {
		logger.Info("cleaned up expired sessions",
			slog.Int64("removed", tag.RowsAffected()),
			slog.String("job", TaskSessionCleanup))
	}
	return nil
}
