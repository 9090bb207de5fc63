package activity

import "errors"

var (
	ErrUnauthorized  = errors.New("activity: unauthorized")
	ErrInvalidConfig = errors.New("activity: invalid config")
	ErrNilState      = errors.New("activity: state not configured")
	ErrNilAmount     = errors.New("activity: amount must be positive")
)
