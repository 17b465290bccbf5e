package auditlog

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleRetention registers a cron job that prunes entries older than the
// retention window. A retentionDays of zero means keep everything.
func ScheduleRetention(cr *cron.Cron, store *Store, retentionDays int, schedule string, logger *zap.Logger) error {
	if retentionDays <= 0 {
		return nil
	}

	_, err := cr.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		n, err := store.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("audit retention sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("audit retention sweep",
				zap.Int64("pruned", n),
				zap.Time("cutoff", cutoff))
		}
	})
	return err
}
