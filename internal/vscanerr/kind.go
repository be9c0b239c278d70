// Package vscanerr defines the error taxonomy shared across the scan core.
package vscanerr

import "errors"

// Kind classifies an error for propagation-policy decisions. It is
// never compared directly by callers; use KindOf and Is instead.
type Kind int

const (
	// Unknown is the zero value; errors without an attached Kind report this.
	Unknown Kind = iota
	// InvalidInput covers path validation, oversize manifests, malformed config.
	InvalidInput
	// DiscoveryFailure covers a missing or unreadable extensions root.
	DiscoveryFailure
	// NetworkTransient covers retryable HTTP/network conditions.
	NetworkTransient
	// NetworkPermanent covers non-retryable HTTP status codes or parse failures.
	NetworkPermanent
	// NotFound covers an extension absent on the remote analyzer.
	NotFound
	// CacheIntegrity covers HMAC mismatch or schema corruption.
	CacheIntegrity
	// CacheIO covers filesystem errors during cache store operations.
	CacheIO
	// Cancellation covers a user-triggered scan interruption.
	Cancellation
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case DiscoveryFailure:
		return "discovery_failure"
	case NetworkTransient:
		return "network_transient"
	case NetworkPermanent:
		return "network_permanent"
	case NotFound:
		return "not_found"
	case CacheIntegrity:
		return "cache_integrity"
	case CacheIO:
		return "cache_io"
	case Cancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// kindError wraps an underlying error with a Kind, preserving %w unwrapping.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New attaches a Kind to err. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the Kind attached to err via New, or Unknown if none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
