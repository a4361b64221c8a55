package postgres

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/pkg/logger"
)

// StartRetentionCleanup starts a background goroutine that periodically
// deletes visit rows older than the retention window to prevent unbounded
// table growth. Rollups only ever look 30 days back, so rows beyond the
// configured retention carry no query value.
func (r *Repository) StartRetentionCleanup(ctx context.Context, keep time.Duration) {
	go func() {
		log := logger.Logger.With().Str("component", "retention_cleanup").Logger()
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		// Run once immediately on startup
		r.cleanupExpiredVisits(ctx, keep)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.cleanupExpiredVisits(ctx, keep)
			}
		}
	}()
}

func (r *Repository) cleanupExpiredVisits(ctx context.Context, keep time.Duration) {
	cutoff := time.Now().Add(-keep)
	result, err := r.pool.Exec(ctx, `DELETE FROM visits WHERE ts < $1`, cutoff)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("visit retention cleanup failed")
		return
	}

	rowsAffected := result.RowsAffected()
	if rowsAffected > 0 {
		logger.Logger.Info().Int64("deleted", rowsAffected).Msg("expired visits cleaned up")
	}
}
