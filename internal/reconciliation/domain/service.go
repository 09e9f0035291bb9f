package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Service is the materialization engine. Run executes the full pipeline in
// the requested mode; dry_run is always side-effect free.
type Service interface {
	Run(ctx context.Context, req Request) (Response, error)

	// Audit runs the discrepancy detector against the live provider lookup
	// for the canonical rows in scope. Read-only.
	Audit(ctx context.Context, req AuditRequest) (AuditResponse, error)
}

// AuditRequest scopes one discrepancy audit.
type AuditRequest struct {
	Scope Scope `json:"scope"`
}

// Discrepancy is a per-uid amount mismatch against the provider.
type Discrepancy struct {
	UID             string          `json:"uid"`
	OurAmount       decimal.Decimal `json:"our_amount"`
	ExternalAmount  decimal.Decimal `json:"external_amount"`
	Diff            decimal.Decimal `json:"diff"`
	TransactionType string          `json:"transaction_type"`
	Status          string          `json:"status"`
}

// NotFoundRecord is a uid the provider could not resolve after exhausting
// every known lookup endpoint.
type NotFoundRecord struct {
	UID            string   `json:"uid"`
	EndpointsTried []string `json:"endpoints_tried"`
	LastHTTPStatus int      `json:"last_http_status"`
}

type AuditResponse struct {
	RunID         string           `json:"run_id"`
	Checked       int              `json:"checked"`
	Matched       int              `json:"matched"`
	Discrepancies []Discrepancy    `json:"discrepancies"`
	NotFound      []NotFoundRecord `json:"not_found"`
	DurationMs    int64            `json:"duration_ms"`
}

var (
	ErrInvalidMode   = errors.New("invalid_mode")
	ErrInvalidScope  = errors.New("invalid_scope")
	ErrInvalidSource = errors.New("invalid_source")
	ErrEmptyInput    = errors.New("empty_input")
	ErrLimitExceeded = errors.New("limit_exceeded")
	ErrNoLookup      = errors.New("lookup_not_configured")
)
