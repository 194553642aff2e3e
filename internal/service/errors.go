package service

import (
	"context"
	"errors"
	"fmt"

	"canteen-service/internal/store"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies why an operation failed
type ErrorKind string

const (
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindUnavailable       ErrorKind = "unavailable"
	KindAborted           ErrorKind = "aborted"
	KindInternal          ErrorKind = "internal"
)

var kindCodes = map[ErrorKind]codes.Code{
	KindUnauthenticated:   codes.Unauthenticated,
	KindPermissionDenied:  codes.PermissionDenied,
	KindNotFound:          codes.NotFound,
	KindInvalidArgument:   codes.InvalidArgument,
	KindResourceExhausted: codes.ResourceExhausted,
	KindUnavailable:       codes.FailedPrecondition,
	KindAborted:           codes.Aborted,
	KindInternal:          codes.Internal,
}

// Code returns the gRPC status code of the kind
func (k ErrorKind) Code() codes.Code {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return codes.Unknown
}

// Error is a failure with a kind the caller can route on
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError and status.Code read the kind
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err. Errors that carry no kind are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// fromStore turns a repository error into a typed service error
func fromStore(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return wrapError(KindNotFound, err, "%s not found", what)
	case errors.Is(err, store.ErrConflict):
		return wrapError(KindAborted, err, "%s was modified concurrently", what)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return wrapError(KindAborted, err, "request cancelled before commit")
	}
	return wrapError(KindInternal, err, "storage failure on %s", what)
}
