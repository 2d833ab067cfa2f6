package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrUnavailable indicates an external service could not be reached or
	// answered with a failure status.
	ErrUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates an external service did not answer within the
	// configured timeout.
	ErrTimeout = errors.New("service timed out")
)

// Code identifies the kind of service failure.
type Code string

const (
	CodeUnavailable Code = "UNAVAILABLE"
	CodeTimeout     Code = "TIMEOUT"
)

// Error is a failure talking to an external service.
type Error struct {
	Code    Code
	Service string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Service, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel for the error's code and its cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// IsRetryable returns true if trying again later might succeed.
func (e *Error) IsRetryable() bool {
	return e.Code == CodeTimeout
}

func (e *Error) sentinel() error {
	if e.Code == CodeTimeout {
		return ErrTimeout
	}
	return ErrUnavailable
}

// Unavailable returns an ErrUnavailable error for the named service.
func Unavailable(name, message string, cause error) *Error {
	return &Error{Code: CodeUnavailable, Service: name, Message: message, Cause: cause}
}

// Timeout returns an ErrTimeout error for the named service.
func Timeout(name, message string, cause error) *Error {
	return &Error{Code: CodeTimeout, Service: name, Message: message, Cause: cause}
}

// Classify maps a transport error from a call to the named service onto
// ErrUnavailable or ErrTimeout. Cancellation by the caller is returned
// unchanged.
func Classify(name string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(name, "request timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout(name, "request timed out", err)
	}
	return Unavailable(name, "request failed", err)
}

// StatusError builds an ErrUnavailable error from a non-2xx response,
// including the start of the response body.
func StatusError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	if s := strings.TrimSpace(string(body)); s != "" {
		msg += " (" + s + ")"
	}
	return Unavailable(name, msg, nil)
}
