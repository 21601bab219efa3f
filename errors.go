package sensei

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// Validation targets.
const (
	TargetParams   = "params"
	TargetResponse = "response"
)

// ValidationError reports arguments or a response body that do not satisfy
// their schema. It is returned before any network I/O for parameters.
type ValidationError struct {
	Target string            // TargetParams or TargetResponse
	Fields map[string]string // field name -> human readable reason
	Err    error             // underlying validator/decoder error, if any
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return fmt.Sprintf("sensei: invalid %s: %v", e.Target, e.Err)
		}
		return fmt.Sprintf("sensei: invalid %s", e.Target)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, len(names))
	for i, name := range names {
		msgs[i] = name + ": " + e.Fields[name]
	}
	return fmt.Sprintf("sensei: invalid %s: %s", e.Target, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// newValidationError converts validator and decoder failures into a
// ValidationError with per-field messages where the source error has them.
func newValidationError(target string, err error) *ValidationError {
	ve := &ValidationError{Target: target, Err: err}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		ve.Fields = make(map[string]string, len(valErrs))
		for _, fe := range valErrs {
			ve.Fields[fe.Field()] = formatValidationError(fe)
		}
		return ve
	}

	var multi schema.MultiError
	if errors.As(err, &multi) {
		ve.Fields = make(map[string]string, len(multi))
		for name, fieldErr := range multi {
			ve.Fields[name] = fieldErr.Error()
		}
	}
	return ve
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "len":
		return fmt.Sprintf("must have length %s", ve.Param())
	case "eq":
		return fmt.Sprintf("must equal %s", ve.Param())
	case "ne":
		return fmt.Sprintf("must not equal %s", ve.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// InvalidMethodError is returned when an Endpoint is declared with a method
// outside the standard HTTP method set.
type InvalidMethodError struct {
	Method  string
	Allowed []string
}

func (e *InvalidMethodError) Error() string {
	return fmt.Sprintf("sensei: invalid HTTP method %q; standard HTTP methods: %s",
		e.Method, strings.Join(e.Allowed, ", "))
}

// ConfigurationError reports an invalid client or endpoint declaration.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("sensei: invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("sensei: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// StatusError is returned by Response.RaiseForStatus for 4xx and 5xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Message    string // endpoint error message, when declared
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s request to %s returned status code %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Message != "" {
		return e.Message + ": " + msg
	}
	return msg
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStatusError reports whether err is or wraps a *StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// IgnoreStatusCodes returns nil when err is a *StatusError with one of codes.
func IgnoreStatusCodes(err error, codes ...int) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}
	for _, code := range codes {
		if se.StatusCode == code {
			return nil
		}
	}
	return err
}
