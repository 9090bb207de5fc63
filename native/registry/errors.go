package registry

import "errors"

var (
	ErrUnauthorized = errors.New("registry: unauthorized")
	ErrEmptyType    = errors.New("registry: type identifier must not be empty")
	ErrNilTemplate  = errors.New("registry: nil template")
)
