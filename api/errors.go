package api

import (
	"errors"
	"fmt"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates a rejected bearer token (HTTP 401/403).
type ErrUnauthorized struct {
	Err error
}

func (e ErrUnauthorized) Error() string {
	return fmt.Errorf("unauthorized: %w", e.Err).Error()
}

func (e ErrUnauthorized) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the shop rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrStatus indicates an unexpected HTTP status.
type ErrStatus struct {
	Code int
	Err  error
}

func (e ErrStatus) Error() string {
	return fmt.Errorf("status %d: %w", e.Code, e.Err).Error()
}

func (e ErrStatus) Unwrap() error {
	return e.Err
}

// ErrBadResponse indicates a 200 response whose body could not be used
// (malformed JSON or ok=false envelope).
type ErrBadResponse struct {
	Err error
}

func (e ErrBadResponse) Error() string {
	return fmt.Errorf("bad_response: %w", e.Err).Error()
}

func (e ErrBadResponse) Unwrap() error {
	return e.Err
}

// ErrPriceUnavailable indicates no price is listed for the requested currency.
var ErrPriceUnavailable = errors.New("price unavailable for currency")

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var unauthorized ErrUnauthorized
	if errors.As(err, &unauthorized) {
		return "unauthorized"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "status"
	}
	var bad ErrBadResponse
	if errors.As(err, &bad) {
		return "bad_response"
	}
	return "other"
}

// retryable reports whether a request error is worth another attempt.
// Auth failures and malformed bodies are not: they will not heal on retry.
func retryable(err error) bool {
	switch errorTypeLabel(err) {
	case "timeout", "connection", "rate_limited", "status":
		return true
	}
	return false
}
