package ai

import "errors"

var (
	// ErrSummarization wraps every failure returned by Summarizer, whatever
	// its cause.
	ErrSummarization = errors.New("LLM summarization failed")

	ErrMissingCredentials = errors.New("backend credentials are not configured")
	ErrEmptySummary       = errors.New("LLM returned empty summary")
	ErrEmptyInput         = errors.New("text must be a non-empty string")
)

// credentialsError names the variable that should have carried the key.
type credentialsError struct {
	env string
}

func (e credentialsError) Error() string { return e.env + " is not configured" }

func (e credentialsError) Is(target error) bool { return target == ErrMissingCredentials }

func missingKey(env string) error { return credentialsError{env: env} }
