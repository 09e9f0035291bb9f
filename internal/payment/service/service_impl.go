package service

import (
	"context"
	"strings"

	"github.com/ajoure/reconcile/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("payment.service"),
		repo: p.Repo,
	}
}

// UnifiedView returns canonical ∪ (staging \ canonical), keyed on uid.
// Membership is a hash-set test so the merge stays linear in the combined
// row count.
func (s *Service) UnifiedView(ctx context.Context, provider string, scope domain.Scope) ([]domain.UnifiedPayment, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, domain.ErrInvalidProvider
	}
	if scope.Limit <= 0 {
		return nil, domain.ErrInvalidScope
	}

	canonical, err := s.repo.ListByScope(ctx, s.db, provider, scope)
	if err != nil {
		return nil, err
	}
	staging, err := s.repo.ListStagingByScope(ctx, s.db, provider, scope)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(canonical))
	out := make([]domain.UnifiedPayment, 0, len(canonical)+len(staging))

	for _, p := range canonical {
		seen[p.ProviderPaymentID] = struct{}{}
		out = append(out, domain.UnifiedPayment{
			Key:               p.Provider + ":" + p.ProviderPaymentID,
			Provider:          p.Provider,
			ProviderPaymentID: p.ProviderPaymentID,
			Amount:            p.Amount,
			Currency:          p.Currency,
			StatusNormalized:  p.StatusNormalized,
			TransactionType:   p.TransactionType,
			PaidAt:            p.PaidAt,
			Source:            "canonical",
		})
	}

	for _, e := range staging {
		if _, ok := seen[e.ProviderPaymentID]; ok {
			continue
		}
		out = append(out, domain.UnifiedPayment{
			Key:               e.Provider + ":" + e.ProviderPaymentID,
			Provider:          e.Provider,
			ProviderPaymentID: e.ProviderPaymentID,
			Amount:            e.Amount,
			Currency:          e.Currency,
			StatusNormalized:  e.StatusNormalized,
			TransactionType:   e.TransactionType,
			PaidAt:            e.PaidAt,
			Source:            "staging",
		})
	}

	return out, nil
}
