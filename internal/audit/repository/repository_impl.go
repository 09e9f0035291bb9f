package repository

import (
	"context"

	"github.com/ajoure/reconcile/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, req domain.ListRequest) ([]domain.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&domain.AuditLog{})
	if req.Action != "" {
		q = q.Where("action = ?", req.Action)
	}
	if req.TargetType != "" {
		q = q.Where("target_type = ?", req.TargetType)
	}
	if req.TargetID != "" {
		q = q.Where("target_id = ?", req.TargetID)
	}
	if req.StartAt != nil {
		q = q.Where("created_at >= ?", *req.StartAt)
	}
	if req.EndAt != nil {
		q = q.Where("created_at < ?", *req.EndAt)
	}
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	var items []domain.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
