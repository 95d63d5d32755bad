package errs

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// Application error codes. They are mapped to http status codes in http.go.
const (
	EINVALID       = "invalid"
	EUNPROCESSABLE = "unprocessable"
	ENOTFOUND      = "not_found"
	EFORBIDDEN     = "forbidden"
	EUNAUTHORIZED  = "unauthorized"
	EINTERNAL      = "internal"
)

// Error represents an application-specific error. Application errors can be
// unwrapped by the caller to extract out the code & message.
//
// Any non-application error (such as a disk error) should be reported as an
// EINTERNAL error and the human user should only see "Internal error" as the
// message. These low-level internal error details should only be logged and
// reported to the operator of the application (not the end user).
type Error struct {
	// Machine-readable error code.
	Code string

	// Human-readable error message.
	Message string

	// Per-field messages of a validation error.
	Fields map[string][]string
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	return fmt.Sprintf("errs error: code=%s message=%s", e.Code, e.Message)
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// ErrorFields unwraps an application error and returns its field messages, if any.
func ErrorFields(err error) map[string][]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// FieldError is a single violated rule of a single input field.
// Validators return these so that all of them can be collected and reported at once.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Field is a helper function to return a FieldError with a formatted message.
func Field(field, format string, args ...interface{}) *FieldError {
	return &FieldError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation folds an error combined with multierr into a single EUNPROCESSABLE
// Error carrying the messages of every FieldError, grouped by field.
// If err contains anything other than FieldErrors, the first such error is returned
// as is, so that storage failures are not mistaken for invalid input.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	fields := make(map[string][]string)
	for _, e := range multierr.Errors(err) {
		var fe *FieldError
		if !errors.As(e, &fe) {
			return e
		}
		fields[fe.Field] = append(fields[fe.Field], fe.Message)
	}
	return &Error{
		Code:    EUNPROCESSABLE,
		Message: validationMessage(fields),
		Fields:  fields,
	}
}

// validationMessage names the first invalid field in alphabetical order,
// so that the message is stable for equal input.
func validationMessage(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 1 {
		return fmt.Sprintf("Invalid %s.", names[0])
	}
	return fmt.Sprintf("Invalid %s and %d other field(s).", names[0], len(names)-1)
}

// Private errors. They indicate a programming mistake rather than bad input
// and are therefore reported as internal errors.
var (
	IdInvalid         = errors.New("errs: ID provided was invalid")
	UserIdValid       = errors.New("errs: user ID is required")
	RememberTooShort  = errors.New("errs: remember token must be at least 32 bytes")
	RememberHashEmpty = errors.New("errs: remember token hash is required")
)
