package config

import "errors"

var (
	// ErrParsingConfig wraps env parse failures, including missing required values
	ErrParsingConfig = errors.New("config.parse")
	// ErrNilPointer is returned for a nil destination
	ErrNilPointer = errors.New("config.nil_pointer")
	// ErrEnvFile is returned when a .env file cannot be read
	ErrEnvFile = errors.New("config.env_file")
)
