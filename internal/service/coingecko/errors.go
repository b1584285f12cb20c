package coingecko

import (
	"errors"
	"fmt"
)

// Kind classifies provider failures for the retry policy.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindHTTP        Kind = "http"
	KindTransport   Kind = "transport"
	KindDecode      Kind = "decode"
)

// FetchError is the only error type returned by provider calls.
type FetchError struct {
	Kind   Kind
	Asset  string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("coingecko %s for %q (status %d): %v", e.Kind, e.Asset, e.Status, e.Err)
	}
	return fmt.Sprintf("coingecko %s for %q: %v", e.Kind, e.Asset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a provider 429.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindRateLimited
}
