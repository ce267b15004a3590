package fields

import (
	"errors"
	"fmt"
)

var (
	ErrNoFieldNames       = errors.New("field names need to be specified or set to nil")
	ErrFieldCountMismatch = errors.New("field name count does not match value count")
	ErrNotMapping         = errors.New("fields must be a mapping")
	ErrNotPositional      = errors.New("positional values must be a list, not a mapping")
	ErrNoSchemaType       = errors.New("schema type is required")
)

// ConfigurationError reports caller input that cannot be mapped to document
// fields. It is returned before any remote call is made.
type ConfigurationError struct {
	Op  string
	Err error
	// Detail is optional context appended to the message.
	Detail string
}

func (e *ConfigurationError) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a ConfigurationError for op.
func NewConfigurationError(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

func configErr(op string, err error, format string, args ...any) error {
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &ConfigurationError{Op: op, Err: err, Detail: detail}
}
