package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Origin identifies which source materialized a canonical payment.
type Origin string

const (
	OriginProviderSync    Origin = "provider_sync"
	OriginStatementImport Origin = "statement_import"
	OriginLegacyMigration Origin = "legacy_migration"
)

// Normalized payment statuses.
const (
	StatusSuccessful = "successful"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
	StatusPending    = "pending"
	StatusVoid       = "void"
	StatusChargeback = "chargeback"
	StatusUnknown    = "unknown"
)

// Payment is one row of the canonical ledger. (provider, provider_payment_id)
// is unique across the whole store; every mutation of an existing row is an
// update, never a second insert.
type Payment struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	Provider          string            `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payments_provider_uid,priority:1"`
	ProviderPaymentID string            `json:"provider_payment_id" gorm:"type:text;not null;uniqueIndex:ux_payments_provider_uid,priority:2"`
	Amount            decimal.Decimal   `json:"amount" gorm:"type:numeric(18,2);not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	StatusNormalized  string            `json:"status_normalized" gorm:"type:text;not null"`
	TransactionType   string            `json:"transaction_type" gorm:"type:text"`
	PaidAt            *time.Time        `json:"paid_at"`
	Origin            Origin            `json:"origin" gorm:"type:text;not null"`
	LinkedProfileID   *snowflake.ID     `json:"linked_profile_id"`
	LinkedOrderID     *snowflake.ID     `json:"linked_order_id"`
	RawFields         datatypes.JSONMap `json:"raw_fields" gorm:"type:jsonb"`
	SourceFile        string            `json:"source_file" gorm:"type:text"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// StagingEntry is a payment event recorded but not yet promoted into the
// canonical store. Once materialized it stays for audit with MaterializedAt
// set; the unified view excludes it via the anti-join.
type StagingEntry struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	Provider          string            `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_staging_provider_uid,priority:1"`
	ProviderPaymentID string            `json:"provider_payment_id" gorm:"type:text;not null;uniqueIndex:ux_staging_provider_uid,priority:2"`
	Amount            decimal.Decimal   `json:"amount" gorm:"type:numeric(18,2);not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	StatusNormalized  string            `json:"status_normalized" gorm:"type:text;not null"`
	TransactionType   string            `json:"transaction_type" gorm:"type:text"`
	PaidAt            *time.Time        `json:"paid_at"`
	RawFields         datatypes.JSONMap `json:"raw_fields" gorm:"type:jsonb"`
	ReceivedAt        time.Time         `json:"received_at" gorm:"not null"`
	MaterializedAt    *time.Time        `json:"materialized_at" gorm:"index"`
}

func (StagingEntry) TableName() string { return "payment_staging" }

// UnifiedPayment is one display row of the unified view: either a canonical
// payment or a staging entry with no canonical counterpart.
type UnifiedPayment struct {
	Key               string          `json:"key"` // {provider}:{providerPaymentId}
	Provider          string          `json:"provider"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	StatusNormalized  string          `json:"status_normalized"`
	TransactionType   string          `json:"transaction_type"`
	PaidAt            *time.Time      `json:"paid_at"`
	Source            string          `json:"source"` // "canonical" or "staging"
}
