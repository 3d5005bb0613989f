package repository

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrRateLimited         = errors.New("rate limited")
	ErrConfigMissing       = errors.New("configuration missing")
	ErrShuttingDown        = errors.New("shutting down")
)
