package normalizer

import (
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	"github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/shopspring/decimal"
)

// Canonical field names a FieldMapping may target.
const (
	FieldUID             = "uid"
	FieldAmount          = "amount"
	FieldCurrency        = "currency"
	FieldStatus          = "status"
	FieldTransactionType = "transaction_type"
	FieldPaidAt          = "paid_at"
)

// DefaultStatementMapping covers the header variants seen across provider
// exports and bank statement files, including localized ones.
var DefaultStatementMapping = domain.FieldMapping{
	"TransactionId":    FieldUID,
	"transaction_id":   FieldUID,
	"uid":              FieldUID,
	"Id операции":      FieldUID,
	"Amount":           FieldAmount,
	"amount":           FieldAmount,
	"Сумма":            FieldAmount,
	"Currency":         FieldCurrency,
	"currency":         FieldCurrency,
	"Валюта":           FieldCurrency,
	"Status":           FieldStatus,
	"status":           FieldStatus,
	"Статус":           FieldStatus,
	"Type":             FieldTransactionType,
	"type":             FieldTransactionType,
	"OperationType":    FieldTransactionType,
	"Тип операции":     FieldTransactionType,
	"CreatedDateTime":  FieldPaidAt,
	"PaymentDateTime":  FieldPaidAt,
	"paid_at":          FieldPaidAt,
	"Дата":             FieldPaidAt,
}

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// spreadsheetEpoch is day zero of the numeric spreadsheet date encoding.
var spreadsheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Normalize converts one raw parsed row into an ImportRow using the given
// field mapping. It never touches storage. Unmapped columns land verbatim in
// RawFields.
func Normalize(raw domain.RawRow, mapping domain.FieldMapping, rowNum int, file string) (domain.ImportRow, *domain.RowError) {
	row := domain.ImportRow{
		RawFields:  map[string]string{},
		SourceFile: file,
	}

	fields := map[string]string{}
	for header, value := range raw {
		row.RawFields[header] = value
		canonical, ok := mapping[header]
		if !ok {
			canonical, ok = mapping[strings.TrimSpace(header)]
		}
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, taken := fields[canonical]; taken {
			continue
		}
		fields[canonical] = strings.TrimSpace(value)
	}

	row.UID = fields[FieldUID]
	if row.UID == "" {
		return row, &domain.RowError{Row: rowNum, File: file, Reason: domain.ReasonMissingUID}
	}

	if v, ok := fields[FieldAmount]; ok {
		amount, err := ParseAmount(v)
		if err != nil {
			return row, &domain.RowError{Row: rowNum, File: file, Reason: domain.ReasonBadAmount}
		}
		row.Amount = amount
	}

	if v, ok := fields[FieldPaidAt]; ok {
		ts, err := ParseDate(v)
		if err != nil {
			return row, &domain.RowError{Row: rowNum, File: file, Reason: domain.ReasonBadDate}
		}
		row.PaidAt = &ts
	}

	row.Currency = strings.ToUpper(fields[FieldCurrency])
	row.Status = NormalizeStatus(fields[FieldStatus])
	row.TransactionType = strings.ToLower(fields[FieldTransactionType])

	return row, nil
}

// ParseAmount tolerates thousands and decimal separator variants: "1,234.56",
// "1.234,56", "1234,56", "1 234.56".
func ParseAmount(v string) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(v))

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the rightmost one is the decimal separator.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			// Multiple commas can only be thousands separators.
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	return decimal.NewFromString(s)
}

// ParseDate accepts a textual timestamp in one of the known layouts or a
// numeric spreadsheet day serial. The first format that parses wins.
func ParseDate(v string) (time.Time, error) {
	s := strings.TrimSpace(v)

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}

	// Numeric spreadsheet epoch: days (possibly fractional) since 1899-12-30.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 200_000 {
		days := int(serial)
		frac := serial - float64(days)
		ts := spreadsheetEpoch.AddDate(0, 0, days).
			Add(time.Duration(frac * 24 * float64(time.Hour)))
		return ts.UTC(), nil
	}

	return time.Time{}, strconv.ErrSyntax
}

// NormalizeStatus collapses provider status spellings into the canonical set.
func NormalizeStatus(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "successful", "succeeded", "success", "completed", "paid", "ok", "завершена":
		return paymentdomain.StatusSuccessful
	case "refunded", "refund", "возвращена":
		return paymentdomain.StatusRefunded
	case "failed", "declined", "error", "отклонена":
		return paymentdomain.StatusFailed
	case "pending", "authorized", "in_progress", "ожидается":
		return paymentdomain.StatusPending
	case "void", "voided", "cancelled", "canceled", "отменена":
		return paymentdomain.StatusVoid
	case "chargeback", "charged_back":
		return paymentdomain.StatusChargeback
	default:
		return paymentdomain.StatusUnknown
	}
}
