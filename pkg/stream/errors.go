package stream

import (
	"errors"
	"fmt"
)

// Common errors returned by the stream engine.
var (
	// ErrInvalidConfig is returned when a stream configuration is
	// missing required fields or is self-contradictory.
	ErrInvalidConfig = errors.New("stream: invalid config")

	// ErrUnknownStream is returned when a catalog lookup fails.
	ErrUnknownStream = errors.New("stream: unknown stream")
)

// ConfigError describes a rejected stream configuration.
type ConfigError struct {
	Stream string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("stream %q: invalid config: %s", e.Stream, e.Reason)
}

// Is makes ConfigError match ErrInvalidConfig for errors.Is.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErr(name, format string, args ...any) error {
	return &ConfigError{Stream: name, Reason: fmt.Sprintf(format, args...)}
}
