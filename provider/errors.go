package provider

import "errors"

// ConfigError marks a failure that is attributable to configuration
// (missing credentials, unsupported brand) rather than the upstream. These
// fail fast before any upstream call and are never retried.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func newConfigError(msg string) error { return &ConfigError{msg: msg} }

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
