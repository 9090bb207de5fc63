package campaign

import "errors"

var (
	ErrPaused              = errors.New("campaign: paused")
	ErrUnauthorized        = errors.New("campaign: unauthorized")
	ErrNotEligible         = errors.New("campaign: eligibility check failed")
	ErrDiscountProof       = errors.New("campaign: discount proof invalid")
	ErrInvalidConfig       = errors.New("campaign: invalid config")
	ErrOriginNotAuthorized = errors.New("campaign: origin not authorized")
	ErrInvalidCombination  = errors.New("campaign: activity/reward combination not allowed")
	ErrUnknownActivityType = errors.New("campaign: unknown activity type")
	ErrUnknownRewardType   = errors.New("campaign: unknown reward type")
	ErrInstanceNotFound    = errors.New("campaign: instance not found")
)
