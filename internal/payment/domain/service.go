package domain

import (
	"context"
	"errors"
)

// Service exposes read-side composition over the canonical store and the
// staging queue.
type Service interface {
	// UnifiedView merges canonical payments with staging entries that have
	// no canonical counterpart (anti-join on uid). It never double-counts a
	// uid present in both.
	UnifiedView(ctx context.Context, provider string, scope Scope) ([]UnifiedPayment, error)
}

var (
	ErrInvalidScope    = errors.New("invalid_scope")
	ErrInvalidProvider = errors.New("invalid_provider")
)
