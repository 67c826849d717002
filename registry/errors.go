package registry

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotRegistered   = errors.New("service is not registered")
	ErrMethodNotFound  = errors.New("method not found")
)
