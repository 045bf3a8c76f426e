package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/settings"
)

// EnrollmentService creates members and runs the enrollment side effects:
// claiming pending guest points and completing an inbound referral.
type EnrollmentService struct {
	db          *gorm.DB
	guestPoints *GuestPointsService
	events      *EventsService
	now         func() time.Time
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(db *gorm.DB, guestPoints *GuestPointsService, events *EventsService) *EnrollmentService {
	return &EnrollmentService{db: db, guestPoints: guestPoints, events: events, now: time.Now}
}

// EnrollInput describes a new member.
type EnrollInput struct {
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	ShopifyCustomerID string `json:"shopify_customer_id"`
	BirthdayMonth     int    `json:"birthday_month"`
	BirthdayDay       int    `json:"birthday_day"`
	ReferralCode      string `json:"referral_code"`
}

// EnrollResult reports a completed enrollment and its side effects.
type EnrollResult struct {
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	Member        *models.Member `json:"member,omitempty"`
	GuestClaimed  int64          `json:"guest_claimed,omitempty"`
	WelcomePoints int64          `json:"welcome_points,omitempty"`
}

// Enroll creates the member, then claims pending guest points, pays the
// referred-side welcome points, and completes the referral. The member
// creation is the primary effect; the side effects are best-effort.
func (s *EnrollmentService) Enroll(ctx context.Context, tenantID uint64, input EnrollInput) (*EnrollResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return &EnrollResult{Error: "email is required"}, nil
	}

	var tenant models.Tenant
	if errFind := s.db.WithContext(ctx).First(&tenant, tenantID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load tenant %d: %w", tenantID, errFind)
	}
	decoded, errDecode := settings.ForTenant(&tenant)
	if errDecode != nil {
		return nil, errDecode
	}

	var existing models.Member
	errLookup := s.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		First(&existing).Error
	if errLookup == nil {
		return &EnrollResult{Error: "email already belongs to a member", Member: &existing}, nil
	}
	if !errors.Is(errLookup, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loyalty: lookup member by email: %w", errLookup)
	}

	member := models.Member{
		TenantID:          tenantID,
		Email:             email,
		FirstName:         strings.TrimSpace(input.FirstName),
		LastName:          strings.TrimSpace(input.LastName),
		ShopifyCustomerID: strings.TrimSpace(input.ShopifyCustomerID),
		Status:            models.MemberStatusActive,
		EnrolledAt:        s.now().UTC(),
	}
	if input.BirthdayMonth != 0 || input.BirthdayDay != 0 {
		birthday, errNormalize := NormalizeBirthday(time.Month(input.BirthdayMonth), input.BirthdayDay)
		if errNormalize != nil {
			return &EnrollResult{Error: errNormalize.Error()}, nil
		}
		member.Birthday = &birthday
	}
	if errCreate := s.db.WithContext(ctx).Create(&member).Error; errCreate != nil {
		return nil, fmt.Errorf("loyalty: create member: %w", errCreate)
	}

	result := &EnrollResult{Success: true, Member: &member}

	claim, errClaim := s.guestPoints.ClaimPoints(ctx, email, member.ID)
	if errClaim != nil {
		log.WithError(errClaim).WithField("member_id", member.ID).Warn("guest points claim on enroll failed")
	} else {
		result.GuestClaimed = claim.Claimed
	}

	// The welcome bonus is only owed once the code is verified and
	// consumed; an unknown or already-completed code pays nobody.
	code := strings.TrimSpace(input.ReferralCode)
	if code != "" && decoded.Referral.Enabled {
		completion, errComplete := s.events.CompleteReferral(ctx, code, email)
		switch {
		case errComplete != nil:
			log.WithError(errComplete).WithField("member_id", member.ID).Warn("referral completion on enroll failed")
		case !completion.Success:
			log.WithFields(log.Fields{
				"member_id": member.ID,
				"reason":    completion.Error,
			}).Info("referral code not honored")
		case decoded.Referral.ReferredPoints > 0:
			errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return addPoints(tx, tenantID, member.ID, decoded.Referral.ReferredPoints, "referral welcome bonus")
			})
			if errTx != nil {
				log.WithError(errTx).WithField("member_id", member.ID).Warn("referral welcome bonus failed")
			} else {
				result.WelcomePoints = decoded.Referral.ReferredPoints
			}
		}
	}

	return result, nil
}

// CreateReferralCode creates a pending referral owned by the member with a
// freshly generated share code.
func (s *EnrollmentService) CreateReferralCode(ctx context.Context, memberID uint64) (*models.Referral, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	referral := models.Referral{
		TenantID:         member.TenantID,
		ReferrerMemberID: member.ID,
		Code:             newReferralCode(),
		Status:           models.ReferralPending,
	}
	if errCreate := s.db.WithContext(ctx).Create(&referral).Error; errCreate != nil {
		return nil, fmt.Errorf("loyalty: create referral: %w", errCreate)
	}
	return &referral, nil
}

// newReferralCode generates a short share code.
func newReferralCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
	return "REF-" + suffix
}
