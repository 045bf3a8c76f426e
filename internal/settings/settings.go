// Package settings decodes the tenant settings blob into typed per-feature
// configuration. Every feature block is validated at this boundary so the
// services never read raw JSON keys.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/perkmill/perkmill/internal/models"
)

// RewardType identifies how a reward is paid out.
type RewardType string

const (
	// RewardPoints pays out loyalty points.
	RewardPoints RewardType = "points"
	// RewardCredit pays out store credit.
	RewardCredit RewardType = "credit"
	// RewardDiscountCode issues a single-use discount code.
	RewardDiscountCode RewardType = "discount_code"
)

// AnniversaryConfig configures the anniversary reward feature.
type AnniversaryConfig struct {
	Enabled            bool               `json:"enabled"`
	RewardType         RewardType         `json:"reward_type"`
	RewardAmount       float64            `json:"reward_amount"`
	TieredRewards      map[string]float64 `json:"tiered_rewards,omitempty"`
	ReminderDaysBefore int                `json:"reminder_days_before"`
	DiscountValidDays  int                `json:"discount_valid_days"`
	MessageTemplate    string             `json:"message_template,omitempty"`
}

// allowedReminderOffsets are the supported advance-notification offsets.
var allowedReminderOffsets = map[int]struct{}{0: {}, 1: {}, 3: {}, 7: {}}

// Validate checks the anniversary block for consistency.
func (c AnniversaryConfig) Validate() error {
	switch c.RewardType {
	case RewardPoints, RewardCredit, RewardDiscountCode:
	default:
		return fmt.Errorf("settings: anniversary: unknown reward_type %q", c.RewardType)
	}
	if c.RewardAmount < 0 {
		return fmt.Errorf("settings: anniversary: negative reward_amount")
	}
	if _, ok := allowedReminderOffsets[c.ReminderDaysBefore]; !ok {
		return fmt.Errorf("settings: anniversary: reminder_days_before must be one of 0, 1, 3, 7")
	}
	for key := range c.TieredRewards {
		if _, errParse := strconv.Atoi(key); errParse != nil {
			return fmt.Errorf("settings: anniversary: tiered_rewards key %q is not a year", key)
		}
	}
	return nil
}

// AmountForYear resolves the reward amount for an anniversary year: the
// tiered override when present, the flat amount otherwise.
func (c AnniversaryConfig) AmountForYear(year int) float64 {
	if amount, ok := c.TieredRewards[strconv.Itoa(year)]; ok {
		return amount
	}
	return c.RewardAmount
}

// BirthdayConfig configures the birthday reward feature. Birthday rewards
// support only points and credit payouts.
type BirthdayConfig struct {
	Enabled            bool       `json:"enabled"`
	RewardType         RewardType `json:"reward_type"`
	RewardAmount       float64    `json:"reward_amount"`
	ReminderDaysBefore int        `json:"reminder_days_before"`
	MessageTemplate    string     `json:"message_template,omitempty"`
}

// Validate checks the birthday block for consistency.
func (c BirthdayConfig) Validate() error {
	switch c.RewardType {
	case RewardPoints, RewardCredit:
	default:
		return fmt.Errorf("settings: birthday: unknown reward_type %q", c.RewardType)
	}
	if c.RewardAmount < 0 {
		return fmt.Errorf("settings: birthday: negative reward_amount")
	}
	if _, ok := allowedReminderOffsets[c.ReminderDaysBefore]; !ok {
		return fmt.Errorf("settings: birthday: reminder_days_before must be one of 0, 1, 3, 7")
	}
	return nil
}

// GuestPointsConfig configures the pre-enrollment guest points feature.
type GuestPointsConfig struct {
	Enabled    bool `json:"enabled"`
	ExpiryDays int  `json:"expiry_days"`
}

// Validate checks the guest points block for consistency.
func (c GuestPointsConfig) Validate() error {
	if c.ExpiryDays <= 0 {
		return fmt.Errorf("settings: guest_points: expiry_days must be positive")
	}
	return nil
}

// ReferralConfig configures the referral program.
type ReferralConfig struct {
	Enabled        bool  `json:"enabled"`
	ReferrerPoints int64 `json:"referrer_points"`
	ReferredPoints int64 `json:"referred_points"`
}

// Validate checks the referral block for consistency.
func (c ReferralConfig) Validate() error {
	if c.ReferrerPoints < 0 || c.ReferredPoints < 0 {
		return fmt.Errorf("settings: referral: negative point amounts")
	}
	return nil
}

// WidgetConfig configures the storefront loyalty widget.
type WidgetConfig struct {
	Enabled        bool   `json:"enabled"`
	Position       string `json:"position"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	Title          string `json:"title"`
	Published      bool   `json:"published"`
}

// LoyaltyPageConfig configures the hosted loyalty page.
type LoyaltyPageConfig struct {
	Enabled       bool     `json:"enabled"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	PrimaryColor  string   `json:"primary_color"`
	Sections      []string `json:"sections,omitempty"`
	Published     bool     `json:"published"`
}

// Settings is the decoded tenant settings tree.
type Settings struct {
	Anniversary AnniversaryConfig `json:"anniversary"`
	Birthday    BirthdayConfig    `json:"birthday"`
	GuestPoints GuestPointsConfig `json:"guest_points"`
	Referral    ReferralConfig    `json:"referral"`
	Widget      WidgetConfig      `json:"widget"`
	LoyaltyPage LoyaltyPageConfig `json:"loyalty_page"`
}

// Defaults returns the settings applied to a freshly installed tenant.
func Defaults() Settings {
	return Settings{
		Anniversary: AnniversaryConfig{
			RewardType:        RewardPoints,
			RewardAmount:      100,
			DiscountValidDays: 30,
		},
		Birthday: BirthdayConfig{
			RewardType:   RewardPoints,
			RewardAmount: 50,
		},
		GuestPoints: GuestPointsConfig{
			ExpiryDays: 90,
		},
		Widget: WidgetConfig{
			Position:       "bottom-right",
			PrimaryColor:   "#1a73e8",
			SecondaryColor: "#ffffff",
			Title:          "Rewards",
		},
		LoyaltyPage: LoyaltyPageConfig{
			Title:        "Rewards",
			PrimaryColor: "#1a73e8",
			Sections:     []string{"points", "badges", "referrals"},
		},
	}
}

// ForTenant decodes the tenant's settings blob over the defaults.
// Unknown keys are ignored; absent blocks keep their default values.
func ForTenant(tenant *models.Tenant) (Settings, error) {
	out := Defaults()
	if tenant == nil {
		return out, fmt.Errorf("settings: nil tenant")
	}
	raw := []byte(tenant.Settings)
	if len(raw) == 0 {
		return out, nil
	}
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return Defaults(), fmt.Errorf("settings: decode tenant %d: %w", tenant.ID, errUnmarshal)
	}
	return out, nil
}

// Validate checks every feature block.
func (s Settings) Validate() error {
	if errValidate := s.Anniversary.Validate(); errValidate != nil {
		return errValidate
	}
	if errValidate := s.Birthday.Validate(); errValidate != nil {
		return errValidate
	}
	if errValidate := s.GuestPoints.Validate(); errValidate != nil {
		return errValidate
	}
	return s.Referral.Validate()
}
