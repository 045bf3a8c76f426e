// Package loyalty implements the reward services: anniversary and birthday
// rewards, guest points, and gamification (badges, streaks, milestones).
//
// Every service method returns a Result envelope instead of raising on
// expected precondition failures; only systemic failures (a failed commit)
// surface as errors.
package loyalty

import "github.com/perkmill/perkmill/internal/settings"

// Result reports the outcome of a per-member reward operation.
//
// The primary effect (balance mutation or discount code issuance) and the
// secondary effects (badge award, activity log, notification) are reported
// separately: Success reflects only the primary effect, SideEffectErrors
// collects failures of best-effort secondary work.
type Result struct {
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	AlreadyRewarded bool                `json:"already_rewarded,omitempty"`
	RewardType      settings.RewardType `json:"reward_type,omitempty"`
	PointsAwarded   int64               `json:"points_awarded,omitempty"`
	CreditAwarded   float64             `json:"credit_awarded,omitempty"`
	DiscountCode    string              `json:"discount_code,omitempty"`
	AnniversaryYear int                 `json:"anniversary_year,omitempty"`

	SideEffectErrors []string `json:"side_effect_errors,omitempty"`
}

func failure(reason string) *Result {
	return &Result{Error: reason}
}

// BatchSummary tallies the outcomes of a batch run. Precondition failures
// are expected and counted as skips, not failures.
type BatchSummary struct {
	Processed int `json:"processed"`
	Rewarded  int `json:"rewarded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *BatchSummary) tally(result *Result, err error) {
	s.Processed++
	switch {
	case err != nil:
		s.Failed++
	case result != nil && result.Success:
		s.Rewarded++
	default:
		s.Skipped++
	}
}
