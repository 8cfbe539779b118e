package domain

import (
	"errors"
	"fmt"
	"time"
)

// ProviderErrorKind clasifica fallos del proveedor RPC.
type ProviderErrorKind int

const (
	ProviderTransient ProviderErrorKind = iota
	ProviderRateLimited
	ProviderExhausted
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderRateLimited:
		return "rate_limited"
	case ProviderExhausted:
		return "exhausted"
	default:
		return "transient"
	}
}

// ProviderError wraps a failure from one RPC endpoint.
type ProviderError struct {
	Kind     ProviderErrorKind
	Endpoint string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("rpc %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("rpc %s on %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsExhausted reports whether err means no endpoint could serve the call.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrAllEndpointsExhausted)
}

// ChainHealth is a snapshot of the endpoint pool.
type ChainHealth struct {
	ActiveEndpoint string
	ActiveIndex    int
	Endpoints      int
	Rotations      int
	ExhaustedSince time.Time // zero when healthy
}
