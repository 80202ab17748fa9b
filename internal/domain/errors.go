package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks caller mistakes such as an empty question or a missing source file.
	ErrInput = errors.New("invalid input")
	// ErrExtraction marks a source document that could not be read or parsed.
	ErrExtraction = errors.New("document extraction failed")
	// ErrRetriesExhausted is returned once every overload retry has been used up.
	ErrRetriesExhausted = errors.New("max retries exceeded due to overload")

	ErrOverloaded    = errors.New("provider overloaded")
	ErrQuotaExceeded = errors.New("provider quota exceeded")
)

// ProviderErrorKind classifies a failure reported by an embedding or generation provider.
type ProviderErrorKind int

const (
	ProviderOther ProviderErrorKind = iota
	ProviderOverloaded
	ProviderRateLimited
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderOverloaded:
		return "overloaded"
	case ProviderRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// ProviderError is the single error type crossing the provider boundary.
type ProviderError struct {
	Kind   ProviderErrorKind
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	var prefix string
	switch e.Kind {
	case ProviderRateLimited:
		prefix = "quota exceeded, do not retry automatically; check provider usage limits or upgrade the plan"
	case ProviderOverloaded:
		prefix = "provider overloaded"
	default:
		prefix = "provider error"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", prefix, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets callers match on the kind with errors.Is(err, ErrOverloaded) and friends.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrOverloaded:
		return e.Kind == ProviderOverloaded
	case ErrQuotaExceeded:
		return e.Kind == ProviderRateLimited
	}
	return false
}

// IsOverloaded reports whether err is a transient provider overload.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// IsQuotaExceeded reports whether err is a terminal quota failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// InputError wraps msg so that it matches ErrInput.
func InputError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInput, msg)
}
