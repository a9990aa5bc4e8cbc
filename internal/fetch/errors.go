package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind partitions fetch failures into retry classes.
type ErrorKind int

const (
	// KindTimeout covers deadline and read timeouts. Retryable.
	KindTimeout ErrorKind = iota
	// KindConnection covers refused, reset, and DNS failures. Retryable.
	KindConnection
	// KindStatus covers non-2xx responses. Fatal for the URL.
	KindStatus
	// KindCanceled covers caller cancellation. Fatal.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindStatus:
		return "status"
	case KindCanceled:
		return "canceled"
	}
	return "unknown"
}

// Error is a classified fetch failure.
type Error struct {
	URL        string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed. Only transient
// transport failures qualify; a bad status never does.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnection
}

// classify wraps a raw transport error with its retry class.
func classify(url string, err error, statusCode int) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{URL: url, Kind: KindCanceled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{URL: url, Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{URL: url, Kind: KindTimeout, Err: err}
	}
	if statusCode != 0 && (statusCode < 200 || statusCode > 299) {
		return &Error{URL: url, Kind: KindStatus, StatusCode: statusCode, Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return &Error{URL: url, Kind: KindTimeout, Err: err}
	}
	return &Error{URL: url, Kind: KindConnection, Err: err}
}
