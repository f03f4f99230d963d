package contract

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrDuplicateTool  = errors.New("duplicate tool")
	ErrToolExecution  = errors.New("tool execution failed")
	ErrContextFetch   = errors.New("context fetch failed")
	ErrServiceFault   = errors.New("service fault")
	ErrValidation     = errors.New("validation failed")
	ErrInvalidSession = errors.New("session id is empty")
	ErrInvalidMessage = errors.New("message is empty")
)

// ErrToolNotFound is a NotFound: errors.Is(ErrToolNotFound, ErrNotFound) holds.
var ErrToolNotFound = &notFoundError{what: "tool"}

type notFoundError struct {
	what string
}

func (e *notFoundError) Error() string {
	return e.what + " not found"
}

func (e *notFoundError) Unwrap() error {
	return ErrNotFound
}
