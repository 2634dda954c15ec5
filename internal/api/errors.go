package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTimeout           = errors.New("timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransport         = errors.New("transport error")
)

type Kind string

const (
	KindNone         Kind = ""
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindTimeout      Kind = "timeout"
	KindMalformed    Kind = "malformed_response"
	KindTransport    Kind = "transport"
)

// Classify maps an error returned by discovery, session resolution or a
// Fetcher onto the error taxonomy. Unknown errors count as transport errors.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	default:
		return KindTransport
	}
}

// wrapTransport turns an http.Client error into ErrTimeout or ErrTransport.
func wrapTransport(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
