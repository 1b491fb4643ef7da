package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every ConfigError via errors.Is.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoNodes indicates a configuration without nodes.
	ErrNoNodes = errors.New("no nodes configured")

	// ErrUnknownType indicates an unrecognized "$type" discriminator.
	ErrUnknownType = errors.New("unknown type")

	// ErrMissingType indicates a polymorphic object without a discriminator.
	ErrMissingType = errors.New("missing $type discriminator")
)

// ConfigError reports a configuration problem at a dotted field path,
// e.g. "Nodes.personal.ContentIndex.Path".
type ConfigError struct {
	ConfigPath string
	Message    string
	Err        error
}

func (e *ConfigError) Error() string {
	if e.ConfigPath == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ConfigPath, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidConfig for every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func newError(path, message string) *ConfigError {
	return &ConfigError{ConfigPath: path, Message: message}
}
