package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrLoadingEnvFile is returned when an explicitly named .env file cannot be read.
	ErrLoadingEnvFile = errors.New("config: failed to load env file")

	// ErrInvalidConfig is returned when parsed values are inconsistent.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrUnsupportedDriver is returned for database drivers other than sqlite and postgres.
	ErrUnsupportedDriver = errors.New("config: unsupported database driver")

	ErrFailedToParseRedisURL = errors.New("config: failed to parse redis connection string")
	ErrRedisNotReady         = errors.New("config: redis did not become ready within the given time period")
	ErrMongoNotReady         = errors.New("config: mongodb did not become ready within the given time period")
)
