package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/settings"
)

// GuestPointsService manages the pending-points ledger for customers who
// have not enrolled yet.
type GuestPointsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGuestPointsService constructs a GuestPointsService.
func NewGuestPointsService(db *gorm.DB) *GuestPointsService {
	return &GuestPointsService{db: db, now: time.Now}
}

// GuestAwardResult reports the outcome of a guest points award.
type GuestAwardResult struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	EntryID   uint64    `json:"entry_id,omitempty"`
	Points    int64     `json:"points,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ClaimResult reports the outcome of a pending-points claim.
type ClaimResult struct {
	Claimed int64 `json:"claimed"` // Total points moved onto the member balance.
	Entries int   `json:"entries"` // Number of pending rows flipped.
}

// PendingSummary aggregates a guest's pending entries.
type PendingSummary struct {
	Email       string               `json:"email"`
	TotalPoints int64                `json:"total_points"`
	Entries     []models.GuestPoints `json:"entries"`
}

// AwardGuestPoints records pending points for a pre-enrollment email.
// Awards are rejected when a member already owns the email: guest points are
// strictly pre-enrollment.
func (s *GuestPointsService) AwardGuestPoints(ctx context.Context, tenantID uint64, email string, points int64, source string) (*GuestAwardResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &GuestAwardResult{Error: "email is required"}, nil
	}
	if points <= 0 {
		return &GuestAwardResult{Error: "points must be positive"}, nil
	}

	var tenant models.Tenant
	if errFind := s.db.WithContext(ctx).First(&tenant, tenantID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load tenant %d: %w", tenantID, errFind)
	}
	decoded, errDecode := settings.ForTenant(&tenant)
	if errDecode != nil {
		return nil, errDecode
	}
	if !decoded.GuestPoints.Enabled {
		return &GuestAwardResult{Error: "guest points are disabled"}, nil
	}

	var existing models.Member
	errMember := s.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		First(&existing).Error
	if errMember == nil {
		return &GuestAwardResult{Error: "email already belongs to a member"}, nil
	}
	if !errors.Is(errMember, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loyalty: lookup member by email: %w", errMember)
	}

	entry := models.GuestPoints{
		TenantID:  tenantID,
		Email:     email,
		Points:    points,
		Source:    source,
		Status:    models.GuestPointsPending,
		ExpiresAt: s.now().UTC().AddDate(0, 0, decoded.GuestPoints.ExpiryDays),
	}
	if errCreate := s.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		return nil, fmt.Errorf("loyalty: create guest points entry: %w", errCreate)
	}
	return &GuestAwardResult{
		Success:   true,
		EntryID:   entry.ID,
		Points:    entry.Points,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

// PendingPoints returns the guest's unclaimed, unexpired entries and their sum.
func (s *GuestPointsService) PendingPoints(ctx context.Context, tenantID uint64, email string) (*PendingSummary, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var entries []models.GuestPoints
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ? AND status = ?", tenantID, email, models.GuestPointsPending).
		Order("id ASC").
		Find(&entries).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load pending guest points: %w", errFind)
	}

	summary := &PendingSummary{Email: email, Entries: entries}
	for i := range entries {
		summary.TotalPoints += entries[i].Points
	}
	return summary, nil
}

// ClaimPoints moves every pending entry for the email onto the member's
// balance and flips the rows to claimed in one transaction. The pending rows
// are locked for the duration, so concurrent claims for the same email
// cannot double-credit. Claiming with nothing pending returns Claimed: 0.
func (s *GuestPointsService) ClaimPoints(ctx context.Context, email string, memberID uint64) (*ClaimResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &ClaimResult{}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.Member
		if errFind := tx.First(&member, memberID).Error; errFind != nil {
			return fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
		}

		var entries []models.GuestPoints
		if errFind := lockForUpdate(tx).
			Where("tenant_id = ? AND email = ? AND status = ?", member.TenantID, email, models.GuestPointsPending).
			Order("id ASC").
			Find(&entries).Error; errFind != nil {
			return fmt.Errorf("loyalty: lock pending guest points: %w", errFind)
		}
		if len(entries) == 0 {
			return nil
		}

		total := int64(0)
		ids := make([]uint64, 0, len(entries))
		for i := range entries {
			total += entries[i].Points
			ids = append(ids, entries[i].ID)
		}

		now := s.now().UTC()
		res := tx.Model(&models.GuestPoints{}).
			Where("id IN ? AND status = ?", ids, models.GuestPointsPending).
			Updates(map[string]any{
				"status":               models.GuestPointsClaimed,
				"claimed_by_member_id": memberID,
				"claimed_at":           now,
			})
		if res.Error != nil {
			return fmt.Errorf("loyalty: claim guest points: %w", res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("loyalty: claimed %d of %d pending entries", res.RowsAffected, len(ids))
		}

		source := fmt.Sprintf("guest points claim (%d entries)", len(ids))
		if errAdd := addPoints(tx, member.TenantID, member.ID, total, source); errAdd != nil {
			return errAdd
		}

		activity := models.MemberActivity{
			TenantID:     member.TenantID,
			MemberID:     member.ID,
			ActivityType: models.ActivityGuestPointsClaim,
			Description:  source,
			Points:       total,
		}
		if errLog := tx.Create(&activity).Error; errLog != nil {
			return fmt.Errorf("loyalty: log guest points claim: %w", errLog)
		}

		result.Claimed = total
		result.Entries = len(ids)
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}

// ExpireOldPoints flips every pending entry past its expiry into the expired
// terminal state. The transition is monotone: expired entries never revert.
func (s *GuestPointsService) ExpireOldPoints(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.GuestPoints{}).
		Where("status = ? AND expires_at < ?", models.GuestPointsPending, s.now().UTC()).
		Update("status", models.GuestPointsExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("loyalty: expire guest points: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Infof("guest points sweep: expired %d entries", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
