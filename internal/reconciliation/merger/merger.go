package merger

import (
	"fmt"
	"strconv"
	"strings"

	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	"github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/ajoure/reconcile/internal/reconciliation/normalizer"
)

// Result is the outcome of collapsing a batch sequence on uid.
type Result struct {
	// Rows holds the merged row per uid.
	Rows map[string]domain.ImportRow
	// Order preserves first-seen uid order so downstream passes are
	// reproducible for a given input order.
	Order            []string
	DuplicatesMerged int
	Warnings         []string
}

// totals/control files are excluded from the data set by name convention.
func IsTotalsFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "control") || strings.Contains(lower, "totals")
}

// Merge collapses normalized rows sharing a uid. The policy is deterministic
// for a given input order: the later-seen row's non-null fields overwrite the
// earlier one's, except raw fields, which become a union keyed by source file
// name. Within-file duplicates follow the same later-row-wins rule.
func Merge(rows []domain.ImportRow) Result {
	res := Result{Rows: make(map[string]domain.ImportRow, len(rows))}

	crossFile := map[string]map[string]bool{}

	for _, row := range rows {
		existing, ok := res.Rows[row.UID]
		if !ok {
			res.Rows[row.UID] = row
			res.Order = append(res.Order, row.UID)
			crossFile[row.UID] = map[string]bool{row.SourceFile: true}
			continue
		}

		res.DuplicatesMerged++
		crossFile[row.UID][row.SourceFile] = true
		res.Rows[row.UID] = mergeRow(existing, row)
	}

	for _, uid := range res.Order {
		if len(crossFile[uid]) > 1 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("uid %s appeared in %d files and was merged", uid, len(crossFile[uid])))
		}
	}

	return res
}

func mergeRow(earlier, later domain.ImportRow) domain.ImportRow {
	merged := earlier

	if !later.Amount.IsZero() {
		merged.Amount = later.Amount
	}
	if later.Currency != "" {
		merged.Currency = later.Currency
	}
	if later.Status != "" && later.Status != paymentdomain.StatusUnknown {
		merged.Status = later.Status
	}
	if later.TransactionType != "" {
		merged.TransactionType = later.TransactionType
	}
	if later.PaidAt != nil {
		merged.PaidAt = later.PaidAt
	}
	if later.SourceFile != "" {
		merged.SourceFile = later.SourceFile
	}

	merged.RawFields = unionRawFields(earlier, later)
	return merged
}

// unionRawFields keys the retained originals by source file so the audit
// trail shows which file supplied which cell.
func unionRawFields(earlier, later domain.ImportRow) map[string]string {
	out := make(map[string]string, len(earlier.RawFields)+len(later.RawFields))
	for header, value := range earlier.RawFields {
		out[rawKey(earlier.SourceFile, header)] = value
	}
	for header, value := range later.RawFields {
		out[rawKey(later.SourceFile, header)] = value
	}
	return out
}

func rawKey(file, header string) string {
	if file == "" || strings.Contains(header, ":") {
		return header
	}
	return file + ":" + header
}

// ExtractTotals builds a TotalsExpectation from a control-total file. The
// file carries one aggregate row; when several are present the last parsable
// values win.
func ExtractTotals(batch domain.RowBatch) (domain.TotalsExpectation, bool) {
	exp := domain.TotalsExpectation{SourceFile: batch.Name}
	found := false

	for _, raw := range batch.Rows {
		for header, value := range raw {
			v := strings.TrimSpace(value)
			if v == "" {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(header)) {
			case "count", "expected_count", "rows":
				if n, err := strconv.Atoi(v); err == nil {
					exp.ExpectedCount = n
					found = true
				}
			case "amount", "expected_amount", "total", "sum":
				if amount, err := normalizer.ParseAmount(v); err == nil {
					exp.ExpectedAmount = amount
					found = true
				}
			}
		}
	}

	return exp, found
}
