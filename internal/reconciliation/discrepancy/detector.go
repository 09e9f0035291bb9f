package discrepancy

import (
	"context"

	"github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LookupResult is the external provider's answer for one uid. When Found is
// false, EndpointsTried and LastHTTPStatus describe the exhausted lookups.
type LookupResult struct {
	Found          bool
	Amount         decimal.Decimal
	EndpointsTried []string
	LastHTTPStatus int
}

// ProviderLookup resolves a uid against the external authority. Lookup errors
// for one uid never abort the sweep.
type ProviderLookup interface {
	Lookup(ctx context.Context, uid string) (LookupResult, error)
}

// CheckedRow is one of our rows submitted for comparison.
type CheckedRow struct {
	UID             string
	Amount          decimal.Decimal
	TransactionType string
	Status          string
}

// Report collects the per-row outcomes of one sweep.
type Report struct {
	Checked       int
	Matched       int
	Discrepancies []domain.Discrepancy
	NotFound      []domain.NotFoundRecord
}

type Detector struct {
	lookup ProviderLookup
	log    *zap.Logger
}

func NewDetector(lookup ProviderLookup, log *zap.Logger) *Detector {
	return &Detector{lookup: lookup, log: log.Named("reconciliation.discrepancy")}
}

// Check compares each row's amount against the live provider value. Per-row
// audit is exact: any non-zero diff is a discrepancy. The sweep is read-only
// and safe to repeat.
func (d *Detector) Check(ctx context.Context, rows []CheckedRow) (Report, error) {
	var report Report

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Checked++
		res, err := d.lookup.Lookup(ctx, row.UID)
		if err != nil {
			d.log.Warn("provider lookup failed",
				zap.String("uid", row.UID),
				zap.Error(err))
			report.NotFound = append(report.NotFound, domain.NotFoundRecord{
				UID:            row.UID,
				EndpointsTried: res.EndpointsTried,
				LastHTTPStatus: res.LastHTTPStatus,
			})
			continue
		}
		if !res.Found {
			report.NotFound = append(report.NotFound, domain.NotFoundRecord{
				UID:            row.UID,
				EndpointsTried: res.EndpointsTried,
				LastHTTPStatus: res.LastHTTPStatus,
			})
			continue
		}

		diff := row.Amount.Sub(res.Amount)
		if diff.IsZero() {
			report.Matched++
			continue
		}

		report.Discrepancies = append(report.Discrepancies, domain.Discrepancy{
			UID:             row.UID,
			OurAmount:       row.Amount,
			ExternalAmount:  res.Amount,
			Diff:            diff,
			TransactionType: row.TransactionType,
			Status:          row.Status,
		})
	}

	return report, nil
}

// CompareTotals is the aggregate sanity check against an operator-supplied
// control total. Tolerance covers floating-point noise in the source file,
// not real mismatches.
func CompareTotals(uidsUnique int, totalAmount decimal.Decimal, exp domain.TotalsExpectation, tolerance decimal.Decimal) domain.TotalsDelta {
	delta := domain.TotalsDelta{
		CountDelta:  uidsUnique - exp.ExpectedCount,
		AmountDelta: totalAmount.Sub(exp.ExpectedAmount),
	}
	delta.Flagged = delta.CountDelta != 0 || delta.AmountDelta.Abs().GreaterThan(tolerance)
	return delta
}
