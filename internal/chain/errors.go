package chain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures at the chain REST boundary
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindNetwork   ErrorKind = "network"
	KindNotFound  ErrorKind = "not_found"
	KindMalformed ErrorKind = "malformed_response"
	KindCanceled  ErrorKind = "canceled"
	KindUnknown   ErrorKind = "unknown"
)

// NetworkError is a transport failure or an unexpected HTTP status. It is transient.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error: %s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError means the chain does not know the requested entity
type NotFoundError struct {
	URL      string
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found (%s)", e.Resource, e.URL)
}

// MalformedResponseError means the endpoint answered with a body we cannot interpret
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Classify maps err to its ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		netErr       *NetworkError
		notFoundErr  *NotFoundError
		malformedErr *MalformedResponseError
	)
	switch {
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &malformedErr):
		return KindMalformed
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	return KindUnknown
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}
