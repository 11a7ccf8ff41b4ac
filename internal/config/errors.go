package config

import "errors"

// Errors returned by configuration operations.
var (
	// ErrUnknownSetting indicates a configuration key that maps to no
	// setting.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrInvalidValue indicates a value of the wrong type for its setting.
	ErrInvalidValue = errors.New("invalid setting value")

	// ErrValidationFailed indicates a value outside its allowed range.
	ErrValidationFailed = errors.New("validation failed")
)
