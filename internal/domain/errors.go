package domain

import "errors"

var (
	// ErrDuplicateSignal is returned when an active signal for the same token exists.
	ErrDuplicateSignal = errors.New("duplicate signal")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePosition is returned when a strategy already holds the token.
	ErrDuplicatePosition = errors.New("position already open")
	// ErrDataUnavailable is returned when token metadata cannot be fetched or is incomplete.
	ErrDataUnavailable = errors.New("token data unavailable")
	// ErrAllEndpointsExhausted is returned when every RPC endpoint failed within one call.
	ErrAllEndpointsExhausted = errors.New("all rpc endpoints exhausted")
)
