package reward

import "errors"

var (
	ErrInvalidConfig       = errors.New("reward: invalid config")
	ErrUnauthorized        = errors.New("reward: unauthorized")
	ErrNotController       = errors.New("reward: caller is not the controller")
	ErrInactive            = errors.New("reward: instance inactive")
	ErrOutsideWindow       = errors.New("reward: outside claim window")
	ErrAlreadyClaimed      = errors.New("reward: already claimed")
	ErrNotYetDue           = errors.New("reward: distribution not yet due")
	ErrAutomaticOnly       = errors.New("reward: instance is manual")
	ErrNotWinner           = errors.New("reward: user is not on the winner list")
	ErrNotListed           = errors.New("reward: user is not on the eligible list")
	ErrInsufficientFunding = errors.New("reward: broker funding insufficient")
	ErrBatchTooLarge       = errors.New("reward: batch exceeds configured size")
	ErrNilState            = errors.New("reward: state not configured")
)
