// Package buildererr defines the error taxonomy of a build run.
//
// Definition and configuration errors are fatal and abort the run before any
// build starts. Build, timeout and push errors are local to one image: they
// are recorded as status detail and never abort the process.
package buildererr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Use errors.Is to classify an error.
var (
	ErrDefinition = errors.New("definition error")
	ErrConfig     = errors.New("configuration error")
	ErrBuild      = errors.New("build error")
	ErrTimeout    = errors.New("build timed out")
	ErrPush       = errors.New("push error")
)

// Stable codes, first two digits are the domain.
const (
	CodeDefinition = "81000"
	CodeConfig     = "82000"
	CodeBuild      = "83000"
	CodeTimeout    = "83100"
	CodePush       = "84000"
)

// Error carries a kind, an optional image name and the underlying cause.
type Error struct {
	code    string
	image   string
	message string
	base    error
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.message
	if msg == "" {
		msg = e.base.Error()
	}
	if e.image != "" {
		msg = e.image + ": " + msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the cause, not the sentinel.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches the sentinel kind. A timeout also matches ErrBuild.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == e.base {
		return true
	}
	return e.base == ErrTimeout && target == ErrBuild
}

// Definition reports an invalid image definition set.
func Definition(format string, args ...any) *Error {
	return &Error{code: CodeDefinition, base: ErrDefinition, message: fmt.Sprintf(format, args...)}
}

// WrapDefinition attaches cause to a definition error for one image.
func WrapDefinition(image string, cause error) *Error {
	return &Error{code: CodeDefinition, base: ErrDefinition, image: image, message: "invalid definition", cause: cause}
}

// Config reports an invalid configuration value.
func Config(format string, args ...any) *Error {
	return &Error{code: CodeConfig, base: ErrConfig, message: fmt.Sprintf(format, args...)}
}

// Build wraps a failed build attempt.
func Build(image string, attempt int, cause error) *Error {
	return &Error{code: CodeBuild, base: ErrBuild, image: image, message: fmt.Sprintf("attempt %d failed", attempt), cause: cause}
}

// Timeout reports an attempt that exceeded its per-attempt budget.
func Timeout(image string, attempt int, after time.Duration) *Error {
	return &Error{code: CodeTimeout, base: ErrTimeout, image: image, message: fmt.Sprintf("attempt %d timed out after %s", attempt, after)}
}

// Push wraps a failed push.
func Push(image string, cause error) *Error {
	return &Error{code: CodePush, base: ErrPush, image: image, message: "push failed", cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}
