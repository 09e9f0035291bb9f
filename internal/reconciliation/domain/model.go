package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run modes.
const (
	ModeDryRun         = "dry_run"
	ModeExecute        = "execute"
	ModeExecuteBlocked = "execute_blocked"
)

// Input sources.
const (
	SourceStatementImport = "statement_import"
	SourceProviderSync    = "provider_sync"
	SourceStagingQueue    = "staging_queue"
)

// ImportRow is one normalized transaction candidate. UID is the sole
// deduplication and idempotency key.
type ImportRow struct {
	UID             string            `json:"uid"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	TransactionType string            `json:"transaction_type"`
	PaidAt          *time.Time        `json:"paid_at"`
	RawFields       map[string]string `json:"raw_fields"`
	SourceFile      string            `json:"source_file,omitempty"`
}

// RowError is a row-level validation failure. It is counted, reported, and
// never aborts a batch.
type RowError struct {
	Row    int    `json:"row"`
	File   string `json:"file,omitempty"`
	Reason string `json:"reason"`
}

// Row-level error reasons.
const (
	ReasonMissingUID = "missing_uid"
	ReasonBadAmount  = "unparsable_amount"
	ReasonBadDate    = "unparsable_date"
)

// RawRow is one parsed-but-unnormalized row: tokenized cells keyed by column
// header, exactly as the upstream file parser handed them over.
type RawRow map[string]string

// RowBatch is one uploaded file's worth of raw rows.
type RowBatch struct {
	Name string   `json:"name"`
	Rows []RawRow `json:"rows"`
}

// FieldMapping maps source-specific column headers to canonical field names
// (uid, amount, currency, status, transaction_type, paid_at). Several headers
// may map to the same canonical field; the first non-empty cell wins.
type FieldMapping map[string]string

// TotalsExpectation is an operator-supplied control total. It is compared
// against computed stats after the fact and never drives materialization.
type TotalsExpectation struct {
	ExpectedCount  int             `json:"expected_count"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	SourceFile     string          `json:"source_file"`
}

// FileStats is per-source-file accounting.
type FileStats struct {
	Name      string `json:"name"`
	TotalRows int    `json:"total_rows"`
	ValidRows int    `json:"valid_rows"`
}

// Stats is the aggregate outcome of one run.
type Stats struct {
	TotalFiles       int              `json:"total_files"`
	PerFile          []FileStats      `json:"per_file"`
	TotalRows        int              `json:"total_rows"`
	ValidRows        int              `json:"valid_rows"`
	InvalidRows      int              `json:"invalid_rows"`
	InvalidRate      float64          `json:"invalid_rate"`
	DuplicatesMerged int              `json:"duplicates_merged"`
	UIDsUnique       int              `json:"uids_unique"`
	TotalAmount      *decimal.Decimal `json:"total_amount,omitempty"`
	Created          int              `json:"created"`
	Updated          int              `json:"updated"`
	Skipped          int              `json:"skipped"`
	Errors           int              `json:"errors"`
}

// Sample outcomes.
const (
	SampleCreated = "created"
	SampleUpdated = "updated"
	SampleSkipped = "skipped"
	SampleError   = "error"
)

// Sample is one representative row outcome included in the run response.
type Sample struct {
	UID    string `json:"uid"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Request is the single logical engine invocation.
type Request struct {
	Mode   string     `json:"mode"`
	Scope  Scope      `json:"scope"`
	Input  []RowBatch `json:"input,omitempty"`
	Source string     `json:"source,omitempty"` // defaults to statement_import when input present
}

// Scope bounds one run.
type Scope struct {
	FromDate *time.Time `json:"from_date,omitempty"`
	ToDate   *time.Time `json:"to_date,omitempty"`
	Limit    int        `json:"limit"`
}

// Response is the full outcome of one run. It is assembled once at the end
// of the run; callers never observe partial state.
type Response struct {
	RunID          string             `json:"run_id"`
	Success        bool               `json:"success"`
	Mode           string             `json:"mode"`
	Stats          Stats              `json:"stats"`
	TotalsExpected *TotalsExpectation `json:"totals_expected,omitempty"`
	TotalsDelta    *TotalsDelta       `json:"totals_delta,omitempty"`
	Samples        []Sample           `json:"samples"`
	SampleErrors   []RowError         `json:"sample_errors"`
	ErrorDetails   []RowWriteError    `json:"error_details,omitempty"`
	Warnings       []string           `json:"warnings"`
	DurationMs     int64              `json:"duration_ms"`
}

// TotalsDelta is the aggregate comparison against a TotalsExpectation.
type TotalsDelta struct {
	CountDelta  int             `json:"count_delta"`
	AmountDelta decimal.Decimal `json:"amount_delta"`
	Flagged     bool            `json:"flagged"`
}

// RowWriteError records one per-row write failure during execute; the run
// continues past it.
type RowWriteError struct {
	UID   string `json:"uid"`
	Error string `json:"error"`
}
