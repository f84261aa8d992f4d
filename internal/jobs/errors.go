package jobs

import "errors"

// ErrValidation is the parent of every submission input error.
// Handlers map it to 400; callers can match the specific cause with errors.Is.
var ErrValidation = errors.New("invalid submission")

var (
	ErrBothInputs = validationError("Cannot provide both url and text. Provide exactly one.")
	ErrNoInput    = validationError("Either url or text must be provided.")
	ErrEmptyURL   = validationError("url cannot be empty or contain only whitespace.")
	ErrEmptyText  = validationError("text cannot be empty or contain only whitespace.")
)

var (
	ErrInvalidJobID      = errors.New("Invalid job ID format. Must be a valid UUID.")
	ErrJobNotFound       = errors.New("Job not found.")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type inputError struct{ msg string }

func validationError(msg string) error { return &inputError{msg: msg} }

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Is(target error) bool { return target == ErrValidation }
