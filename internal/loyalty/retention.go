package loyalty

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRetentionDays   = 365
	retentionDeleteBatch   = 5000
	maxDeleteBatchesPerRun = 2000
)

// RetentionService deletes aged rows from the activity log and the settled
// guest points table. Pending guest points are never touched; expiry is the
// job of ExpireOldPoints.
type RetentionService struct {
	db        *gorm.DB
	days      int
	batchSize int
}

// NewRetentionService constructs a RetentionService. days <= 0 selects the
// default retention window.
func NewRetentionService(db *gorm.DB, days int) *RetentionService {
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &RetentionService{db: db, days: days, batchSize: retentionDeleteBatch}
}

// Sweep removes rows older than the retention window and reports how many
// were deleted per table.
func (s *RetentionService) Sweep(ctx context.Context) (activities, guestRows int64, err error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.days)

	activities, err = s.deleteBatched(ctx, `
		DELETE FROM member_activities
		WHERE id IN (
			SELECT id FROM member_activities
			WHERE created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
	`, cutoff)
	if err != nil {
		return activities, 0, fmt.Errorf("loyalty: retention sweep activities: %w", err)
	}

	guestRows, err = s.deleteBatched(ctx, `
		DELETE FROM guest_points
		WHERE id IN (
			SELECT id FROM guest_points
			WHERE status IN ('claimed', 'expired') AND created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
	`, cutoff)
	if err != nil {
		return activities, guestRows, fmt.Errorf("loyalty: retention sweep guest points: %w", err)
	}

	if activities > 0 || guestRows > 0 {
		log.WithFields(log.Fields{
			"activities":   activities,
			"guest_points": guestRows,
			"cutoff":       cutoff.Format(time.RFC3339),
		}).Info("retention sweep done")
	}
	return activities, guestRows, nil
}

// deleteBatched runs the delete in limited batches to avoid long-running
// transactions and table locks.
func (s *RetentionService) deleteBatched(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	var total int64
	for i := 0; i < maxDeleteBatchesPerRun; i++ {
		if errCtx := ctx.Err(); errCtx != nil {
			return total, errCtx
		}
		res := s.db.WithContext(ctx).Exec(query, cutoff, s.batchSize)
		if res.Error != nil {
			return total, res.Error
		}
		if res.RowsAffected == 0 {
			break
		}
		total += res.RowsAffected
	}
	return total, nil
}
