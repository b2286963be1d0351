package service

import "errors"

var (
	// ErrValidation marks bad client input. Use errors.As with
	// *ValidationError to get the client facing message.
	ErrValidation = errors.New("validation failed")

	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrUserAlreadyExists = errors.New("user already exists")

	ErrUserNotFound = errors.New("user not found")

	ErrTaskNotFound = errors.New("task not found")

	// ErrPricingUnavailable is returned when a task could not be enriched
	// with market data. Nothing is saved in that case.
	ErrPricingUnavailable = errors.New("pricing data unavailable")
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(message string) error {
	return &ValidationError{Message: message}
}
