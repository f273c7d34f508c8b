package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindRequest indicates the request could not be built (bad URL).
	KindRequest Kind = iota

	// KindTransport indicates a DNS, connection or protocol failure.
	KindTransport

	// KindTimeout indicates the request exceeded its deadline.
	KindTimeout

	// KindStatus indicates a non-2xx HTTP status.
	KindStatus

	// KindRedirect indicates a rejected redirect (cross-host or too many).
	KindRedirect

	// KindTooLarge indicates a body larger than the configured limit.
	KindTooLarge

	// KindRead indicates the body could not be read completely.
	KindRead
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindRedirect:
		return "redirect"
	case KindTooLarge:
		return "too large"
	case KindRead:
		return "read"
	default:
		return "unknown"
	}
}

// Error is returned by Fetcher.Fetch for every failure.
type Error struct {
	// URL is the requested URL.
	URL string

	// Kind classifies the failure.
	Kind Kind

	// StatusCode is the HTTP status for KindStatus, otherwise zero.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrCrossHostRedirect is the cause of a KindRedirect error when a
	// redirect leaves the host the request was restricted to.
	ErrCrossHostRedirect = errors.New("redirect leaves the allowed host")

	// ErrTooManyRedirects is the cause of a KindRedirect error when the
	// redirect chain exceeds MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrRedirectRejected is the cause of a KindRedirect error when the
	// filter set with WithRedirectFilter refused a redirect target.
	ErrRedirectRejected = errors.New("redirect rejected")

	// ErrBodyTooLarge is the cause of a KindTooLarge error.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
