package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Scope bounds one read or run to a date window and row limit.
type Scope struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

type Repository interface {
	// FindByUID returns the canonical payment for (provider, uid), or nil
	// when none exists.
	FindByUID(ctx context.Context, db *gorm.DB, provider, uid string) (*Payment, error)

	// Insert adds a new canonical payment. Returns false without error when
	// the (provider, uid) row already exists (lost race), so the caller can
	// fall back to update-or-skip.
	Insert(ctx context.Context, db *gorm.DB, p *Payment) (bool, error)

	// UpdateSourceFields overwrites the source-owned columns of an existing
	// row. Linkage columns are not touched; they belong to the linking
	// workflow.
	UpdateSourceFields(ctx context.Context, db *gorm.DB, p *Payment) error

	ListByScope(ctx context.Context, db *gorm.DB, provider string, scope Scope) ([]Payment, error)

	ListStagingByScope(ctx context.Context, db *gorm.DB, provider string, scope Scope) ([]StagingEntry, error)

	// ListPendingStaging returns staging entries not yet materialized.
	ListPendingStaging(ctx context.Context, db *gorm.DB, provider string, scope Scope) ([]StagingEntry, error)

	MarkStagingMaterialized(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
