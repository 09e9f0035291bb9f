package repository

import (
	"context"
	"time"

	"github.com/ajoure/reconcile/internal/payment/domain"
	pkgdb "github.com/ajoure/reconcile/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUID(ctx context.Context, db *gorm.DB, provider, uid string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_payment_id, amount, currency, status_normalized,
			transaction_type, paid_at, origin, linked_profile_id, linked_order_id,
			raw_fields, source_file, created_at, updated_at
		 FROM payments
		 WHERE provider = ? AND provider_payment_id = ?
		 LIMIT 1`,
		provider,
		uid,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, provider, provider_payment_id, amount, currency, status_normalized,
			transaction_type, paid_at, origin, linked_profile_id, linked_order_id,
			raw_fields, source_file, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_payment_id) DO NOTHING`,
		p.ID,
		p.Provider,
		p.ProviderPaymentID,
		p.Amount,
		p.Currency,
		p.StatusNormalized,
		p.TransactionType,
		p.PaidAt,
		p.Origin,
		p.LinkedProfileID,
		p.LinkedOrderID,
		p.RawFields,
		p.SourceFile,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateSourceFields deliberately omits linked_profile_id and linked_order_id.
func (r *repo) UpdateSourceFields(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET amount = ?, currency = ?, status_normalized = ?, transaction_type = ?,
			paid_at = ?, origin = ?, raw_fields = ?, source_file = ?, updated_at = ?
		 WHERE provider = ? AND provider_payment_id = ?`,
		p.Amount,
		p.Currency,
		p.StatusNormalized,
		p.TransactionType,
		p.PaidAt,
		p.Origin,
		p.RawFields,
		p.SourceFile,
		p.UpdatedAt,
		p.Provider,
		p.ProviderPaymentID,
	).Error
}

func (r *repo) ListByScope(ctx context.Context, db *gorm.DB, provider string, scope domain.Scope) ([]domain.Payment, error) {
	q := db.WithContext(ctx).Model(&domain.Payment{}).Where("provider = ?", provider)
	q = applyScope(q, "paid_at", scope)
	var items []domain.Payment
	if err := q.Order("paid_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStagingByScope(ctx context.Context, db *gorm.DB, provider string, scope domain.Scope) ([]domain.StagingEntry, error) {
	q := db.WithContext(ctx).Model(&domain.StagingEntry{}).Where("provider = ?", provider)
	q = applyScope(q, "received_at", scope)
	var items []domain.StagingEntry
	if err := q.Order("received_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingStaging(ctx context.Context, db *gorm.DB, provider string, scope domain.Scope) ([]domain.StagingEntry, error) {
	q := db.WithContext(ctx).Model(&domain.StagingEntry{}).
		Where("provider = ?", provider).
		Where("materialized_at IS NULL")
	q = applyScope(q, "received_at", scope)
	var items []domain.StagingEntry
	if err := q.Order("received_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkStagingMaterialized(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_staging
		 SET materialized_at = ?
		 WHERE id = ? AND materialized_at IS NULL`,
		at,
		id,
	).Error
}

func applyScope(q *gorm.DB, column string, scope domain.Scope) *gorm.DB {
	if scope.From != nil {
		q = q.Where(column+" >= ?", *scope.From)
	}
	if scope.To != nil {
		q = q.Where(column+" < ?", *scope.To)
	}
	if scope.Limit > 0 {
		q = q.Limit(scope.Limit)
	}
	return q
}
