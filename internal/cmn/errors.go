// Package cmn provides common constants, types, and utilities shared
// across the emulator's services, repositories, and handlers.
package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Code is the wire-stable error taxonomy from the modeled provider's API.
type Code string

const (
	CodeInvalidArgument    Code = "InvalidArgument"
	CodeNotFound           Code = "NotFound"
	CodeAlreadyExists      Code = "AlreadyExists"
	CodePreconditionFailed Code = "PreconditionFailed"
	CodePermissionDenied   Code = "PermissionDenied"
	CodeUnauthenticated    Code = "Unauthenticated"
	CodeResourceExhausted  Code = "ResourceExhausted"
	CodeFailedPrecondition Code = "FailedPrecondition"
	CodeInternal           Code = "Internal"
)

var statusByCode = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodePreconditionFailed: http.StatusPreconditionFailed,
	CodePermissionDenied:   http.StatusForbidden,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeFailedPrecondition: http.StatusPreconditionFailed,
	CodeInternal:           http.StatusInternalServerError,
}

// Error is the taxonomy-tagged error every service returns; handlers
// translate it directly into the uniform {error:{code,message,status}} body.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func NewInvalidArgument(format string, args ...interface{}) *Error {
	return newErr(CodeInvalidArgument, format, args...)
}

func NewNotFound(format string, args ...interface{}) *Error {
	return newErr(CodeNotFound, format, args...)
}

func NewAlreadyExists(format string, args ...interface{}) *Error {
	return newErr(CodeAlreadyExists, format, args...)
}

func NewPreconditionFailed(format string, args ...interface{}) *Error {
	return newErr(CodePreconditionFailed, format, args...)
}

func NewPermissionDenied(format string, args ...interface{}) *Error {
	return newErr(CodePermissionDenied, format, args...)
}

func NewUnauthenticated(format string, args ...interface{}) *Error {
	return newErr(CodeUnauthenticated, format, args...)
}

func NewResourceExhausted(format string, args ...interface{}) *Error {
	return newErr(CodeResourceExhausted, format, args...)
}

func NewFailedPrecondition(format string, args ...interface{}) *Error {
	return newErr(CodeFailedPrecondition, format, args...)
}

// WrapInternal annotates an unexpected lower-layer failure (DB, FS,
// container runtime) with call-site context and tags it Internal.
func WrapInternal(cause error, format string, args ...interface{}) *Error {
	return &Error{code: CodeInternal, message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// AsTaxonomy unwraps err down to the nearest *Error, defaulting to Internal
// for anything a repository or driver returned bare.
func AsTaxonomy(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return WrapInternal(err, "unclassified error")
}
