package discrepancy

import (
	"context"
	"errors"
	"testing"

	"github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLookup struct {
	results map[string]LookupResult
	errs    map[string]error
	calls   []string
}

func (f *fakeLookup) Lookup(_ context.Context, uid string) (LookupResult, error) {
	f.calls = append(f.calls, uid)
	if err, ok := f.errs[uid]; ok {
		return LookupResult{EndpointsTried: []string{"primary"}, LastHTTPStatus: 500}, err
	}
	return f.results[uid], nil
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckOutcomes(t *testing.T) {
	lookup := &fakeLookup{
		results: map[string]LookupResult{
			"m1": {Found: true, Amount: amount("10.00")},
			"d1": {Found: true, Amount: amount("9.50")},
			"n1": {Found: false, EndpointsTried: []string{"primary", "fallback"}, LastHTTPStatus: 404},
		},
		errs: map[string]error{"e1": errors.New("dial timeout")},
	}
	d := NewDetector(lookup, zaptest.NewLogger(t))

	report, err := d.Check(context.Background(), []CheckedRow{
		{UID: "m1", Amount: amount("10.00")},
		{UID: "d1", Amount: amount("10.00"), TransactionType: "payment", Status: "successful"},
		{UID: "n1", Amount: amount("5.00")},
		{UID: "e1", Amount: amount("5.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 1, report.Matched)

	require.Len(t, report.Discrepancies, 1)
	disc := report.Discrepancies[0]
	assert.Equal(t, "d1", disc.UID)
	assert.True(t, disc.Diff.Equal(amount("0.50")))
	assert.Equal(t, "payment", disc.TransactionType)

	require.Len(t, report.NotFound, 2)
	assert.Equal(t, "n1", report.NotFound[0].UID)
	assert.Equal(t, []string{"primary", "fallback"}, report.NotFound[0].EndpointsTried)
	assert.Equal(t, 404, report.NotFound[0].LastHTTPStatus)
	assert.Equal(t, "e1", report.NotFound[1].UID)
}

func TestCheckExactComparison(t *testing.T) {
	lookup := &fakeLookup{
		results: map[string]LookupResult{
			"x": {Found: true, Amount: amount("10.00")},
		},
	}
	d := NewDetector(lookup, zaptest.NewLogger(t))

	report, err := d.Check(context.Background(), []CheckedRow{
		{UID: "x", Amount: amount("10.01")},
	})
	require.NoError(t, err)
	// Per-row audit has no tolerance; a cent off is a discrepancy.
	assert.Len(t, report.Discrepancies, 1)
	assert.Equal(t, 0, report.Matched)
}

func TestCheckCancelledContext(t *testing.T) {
	lookup := &fakeLookup{results: map[string]LookupResult{}}
	d := NewDetector(lookup, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.Check(ctx, []CheckedRow{{UID: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Checked)
	assert.Empty(t, lookup.calls)
}

func TestCompareTotals(t *testing.T) {
	exp := domain.TotalsExpectation{ExpectedCount: 84, ExpectedAmount: amount("1000.00")}
	tolerance := amount("0.01")

	delta := CompareTotals(84, amount("1000.00"), exp, tolerance)
	assert.False(t, delta.Flagged)

	delta = CompareTotals(84, amount("1000.01"), exp, tolerance)
	assert.False(t, delta.Flagged)

	delta = CompareTotals(84, amount("1000.02"), exp, tolerance)
	assert.True(t, delta.Flagged)
	assert.True(t, delta.AmountDelta.Equal(amount("0.02")))

	delta = CompareTotals(83, amount("1000.00"), exp, tolerance)
	assert.True(t, delta.Flagged)
	assert.Equal(t, -1, delta.CountDelta)
}
