package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures independently of provider-specific
// error text. The gateway's retry and refund policy keys off this tag.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindTimeout      ErrorKind = "timeout"
	KindMalformed    ErrorKind = "malformed"
	KindNotFound     ErrorKind = "not_found"
	KindUnknown      ErrorKind = "unknown"
)

// Error is a typed provider failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, treating context deadline expiry as a
// timeout and anything untyped as unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether the kind qualifies for a bounded automatic
// retry. Everything else is terminal on first occurrence.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTimeout
}

// Result is the normalized outcome of a successful provider call.
type Result struct {
	Summary string
	Data    map[string]any
}

// AdapterConfig carries the connection material for one integration. Built
// from the credential store on the call path only; it is never logged.
type AdapterConfig struct {
	BaseURL string
	APIKey  string
	Secret  string
	Timeout time.Duration
}

// Adapter turns a logical operation plus input into an outbound provider
// call and its response into a normalized result or a typed failure.
// Adapters are pure translation: they never touch the ledger or query log.
type Adapter interface {
	Invoke(ctx context.Context, operationTag string, input map[string]any) (*Result, error)
}

// Factory builds adapters for one external provider family.
type Factory interface {
	Family() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

var (
	ErrInvalidConfig  = errors.New("invalid_adapter_config")
	ErrFamilyNotFound = errors.New("provider_family_not_found")
)
