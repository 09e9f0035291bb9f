package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/ajoure/reconcile/internal/audit/domain"
	"github.com/ajoure/reconcile/internal/clock"
	"github.com/ajoure/reconcile/internal/config"
	"github.com/ajoure/reconcile/internal/metrics"
	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	"github.com/ajoure/reconcile/internal/reconciliation/discrepancy"
	"github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/ajoure/reconcile/internal/reconciliation/merger"
	"github.com/ajoure/reconcile/internal/reconciliation/normalizer"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Policy      *config.PolicyHolder
	PaymentRepo paymentdomain.Repository
	AuditSvc    auditdomain.Service
	Lookup      discrepancy.ProviderLookup `optional:"true"`
	Metrics     *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	provider    string
	policy      *config.PolicyHolder
	paymentRepo paymentdomain.Repository
	auditSvc    auditdomain.Service
	lookup      discrepancy.ProviderLookup
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		provider:    p.Cfg.Provider.Name,
		policy:      p.Policy,
		paymentRepo: p.PaymentRepo,
		auditSvc:    p.AuditSvc,
		lookup:      p.Lookup,
		metrics:     p.Metrics,
	}
}

// scan is the shared pre-write pipeline state: normalized, merged input plus
// the stats a dry run reports.
type scan struct {
	merged   merger.Result
	stats    domain.Stats
	totals   *domain.TotalsExpectation
	errors   []domain.RowError
	warnings []string
	source   string
}

func (s *Service) Run(ctx context.Context, req domain.Request) (domain.Response, error) {
	started := time.Now()
	policy := s.policy.Get()

	if req.Mode != domain.ModeDryRun && req.Mode != domain.ModeExecute {
		return domain.Response{}, domain.ErrInvalidMode
	}
	if req.Scope.Limit <= 0 {
		return domain.Response{}, domain.ErrInvalidScope
	}
	if req.Scope.Limit > policy.MaxRowsPerRun {
		return domain.Response{}, domain.ErrLimitExceeded
	}
	if req.Scope.FromDate != nil && req.Scope.ToDate != nil && req.Scope.ToDate.Before(*req.Scope.FromDate) {
		return domain.Response{}, domain.ErrInvalidScope
	}

	source, err := resolveSource(req)
	if err != nil {
		return domain.Response{}, err
	}

	sc, err := s.scanInput(ctx, req, source, policy)
	if err != nil {
		// Nothing was attempted; this is a whole-run failure with no
		// partial stats.
		return domain.Response{}, err
	}

	resp := domain.Response{
		RunID:        uuid.NewString(),
		Mode:         req.Mode,
		Stats:        sc.stats,
		Samples:      []domain.Sample{},
		SampleErrors: boundedErrors(sc.errors, policy.SampleLimit),
		Warnings:     sc.warnings,
	}
	if sc.totals != nil {
		resp.TotalsExpected = sc.totals
		delta := discrepancy.CompareTotals(
			sc.stats.UIDsUnique,
			derefAmount(sc.stats.TotalAmount),
			*sc.totals,
			decimal.NewFromFloat(policy.AmountTolerance),
		)
		resp.TotalsDelta = &delta
		if delta.Flagged {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf(
				"control totals mismatch: count delta %d, amount delta %s",
				delta.CountDelta, delta.AmountDelta.String()))
		}
	}

	// STOP-guard: unconditional for execute runs over the invalid-rate
	// threshold. No override exists; the run performs no writes.
	if req.Mode == domain.ModeExecute && sc.stats.InvalidRate > policy.MaxInvalidRate {
		resp.Mode = domain.ModeExecuteBlocked
		resp.Success = false
		resp.Warnings = append(resp.Warnings, fmt.Sprintf(
			"execute blocked: invalid rate %.2f exceeds %.2f",
			sc.stats.InvalidRate, policy.MaxInvalidRate))
		resp.DurationMs = time.Since(started).Milliseconds()
		s.metrics.IncBlocked()
		s.metrics.ObserveRun(domain.ModeExecute, "blocked", time.Since(started))
		s.record(ctx, "reconciliation.execute_blocked", resp)
		return resp, nil
	}

	switch req.Mode {
	case domain.ModeDryRun:
		err = s.preview(ctx, sc, &resp, policy)
	case domain.ModeExecute:
		err = s.materialize(ctx, sc, &resp, policy)
	}
	if err != nil {
		return domain.Response{}, err
	}

	resp.Success = resp.Stats.Errors == 0
	resp.DurationMs = time.Since(started).Milliseconds()

	outcome := "ok"
	if !resp.Success {
		outcome = "partial"
	}
	s.metrics.ObserveRun(req.Mode, outcome, time.Since(started))
	s.record(ctx, "reconciliation."+req.Mode, resp)

	s.log.Info("run finished",
		zap.String("run_id", resp.RunID),
		zap.String("mode", resp.Mode),
		zap.Int("scanned", resp.Stats.TotalRows),
		zap.Int("created", resp.Stats.Created),
		zap.Int("updated", resp.Stats.Updated),
		zap.Int("skipped", resp.Stats.Skipped),
		zap.Int("errors", resp.Stats.Errors),
		zap.Int64("duration_ms", resp.DurationMs))

	return resp, nil
}

func resolveSource(req domain.Request) (string, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		if len(req.Input) > 0 {
			return domain.SourceStatementImport, nil
		}
		return domain.SourceStagingQueue, nil
	}
	switch source {
	case domain.SourceStatementImport, domain.SourceProviderSync:
		if len(req.Input) == 0 {
			return "", domain.ErrEmptyInput
		}
		return source, nil
	case domain.SourceStagingQueue:
		return source, nil
	default:
		return "", domain.ErrInvalidSource
	}
}

// scanInput runs the normalizer and merger over the run's input scope. It
// never writes.
func (s *Service) scanInput(ctx context.Context, req domain.Request, source string, policy config.ReconcilePolicy) (*scan, error) {
	sc := &scan{source: source}

	var rows []domain.ImportRow
	switch source {
	case domain.SourceStatementImport, domain.SourceProviderSync:
		rows = s.normalizeBatches(req.Input, sc)
	case domain.SourceStagingQueue:
		pending, err := s.paymentRepo.ListPendingStaging(ctx, s.db, s.provider, paymentdomain.Scope{
			From:  req.Scope.FromDate,
			To:    req.Scope.ToDate,
			Limit: req.Scope.Limit,
		})
		if err != nil {
			return nil, err
		}
		rows = stagingRows(pending)
		sc.stats.TotalRows = len(rows)
		sc.stats.ValidRows = len(rows)
	}

	if sc.stats.TotalRows > req.Scope.Limit {
		return nil, domain.ErrLimitExceeded
	}

	merged := merger.Merge(rows)
	sc.merged = merged
	sc.warnings = append(sc.warnings, merged.Warnings...)

	sc.stats.DuplicatesMerged = merged.DuplicatesMerged
	sc.stats.UIDsUnique = len(merged.Order)
	if sc.stats.TotalRows > 0 {
		sc.stats.InvalidRate = float64(sc.stats.InvalidRows) / float64(sc.stats.TotalRows)
	}

	total := decimal.Zero
	for _, uid := range merged.Order {
		total = total.Add(merged.Rows[uid].Amount)
	}
	sc.stats.TotalAmount = &total

	return sc, nil
}

func (s *Service) normalizeBatches(batches []domain.RowBatch, sc *scan) []domain.ImportRow {
	var rows []domain.ImportRow

	for _, batch := range batches {
		if merger.IsTotalsFile(batch.Name) {
			if exp, ok := merger.ExtractTotals(batch); ok {
				sc.totals = &exp
			} else {
				sc.warnings = append(sc.warnings, fmt.Sprintf(
					"control file %s carried no parsable totals", batch.Name))
			}
			continue
		}

		fileStats := domain.FileStats{Name: batch.Name}
		for i, raw := range batch.Rows {
			fileStats.TotalRows++
			sc.stats.TotalRows++

			row, rowErr := normalizer.Normalize(raw, normalizer.DefaultStatementMapping, i+1, batch.Name)
			if rowErr != nil {
				sc.stats.InvalidRows++
				sc.errors = append(sc.errors, *rowErr)
				continue
			}

			fileStats.ValidRows++
			sc.stats.ValidRows++
			rows = append(rows, row)
		}

		sc.stats.TotalFiles++
		sc.stats.PerFile = append(sc.stats.PerFile, fileStats)
	}

	return rows
}

// preview computes what execute would do without mutating anything.
func (s *Service) preview(ctx context.Context, sc *scan, resp *domain.Response, policy config.ReconcilePolicy) error {
	samples := newSampleSet(policy.SampleLimit)

	for _, uid := range sc.merged.Order {
		row := sc.merged.Rows[uid]

		existing, err := s.paymentRepo.FindByUID(ctx, s.db, s.provider, uid)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			resp.Stats.Created++
			samples.add(domain.Sample{UID: uid, Result: domain.SampleCreated})
		case s.sourceFieldsDiffer(existing, row):
			resp.Stats.Updated++
			samples.add(domain.Sample{UID: uid, Result: domain.SampleUpdated})
		default:
			resp.Stats.Skipped++
			samples.add(domain.Sample{UID: uid, Result: domain.SampleSkipped})
		}
	}

	resp.Samples = samples.list()
	return nil
}

// materialize commits the merged rows one by one. Each row's outcome is
// independent: a failed write is recorded and the run continues. A context
// deadline stops scheduling further rows but keeps completed outcomes.
func (s *Service) materialize(ctx context.Context, sc *scan, resp *domain.Response, policy config.ReconcilePolicy) error {
	samples := newSampleSet(policy.SampleLimit)
	now := s.clock.Now()
	origin := originFor(sc.source)

	stagingIDs := map[string]snowflake.ID{}
	if sc.source == domain.SourceStagingQueue {
		for uid, row := range sc.merged.Rows {
			if id, ok := row.RawFields["staging_id"]; ok {
				if parsed, err := snowflake.ParseString(id); err == nil {
					stagingIDs[uid] = parsed
				}
			}
		}
	}

	for _, uid := range sc.merged.Order {
		if ctx.Err() != nil {
			resp.Warnings = append(resp.Warnings,
				"run interrupted: remaining rows were not attempted")
			break
		}

		row := sc.merged.Rows[uid]
		outcome, err := s.upsertRow(ctx, row, origin, now)
		if err != nil {
			resp.Stats.Errors++
			resp.ErrorDetails = append(resp.ErrorDetails, domain.RowWriteError{
				UID:   uid,
				Error: err.Error(),
			})
			samples.add(domain.Sample{UID: uid, Result: domain.SampleError, Error: err.Error()})
			s.metrics.AddRowOutcome(domain.SampleError, 1)
			s.log.Warn("row write failed", zap.String("uid", uid), zap.Error(err))
			continue
		}

		switch outcome {
		case domain.SampleCreated:
			resp.Stats.Created++
		case domain.SampleUpdated:
			resp.Stats.Updated++
		case domain.SampleSkipped:
			resp.Stats.Skipped++
		}
		samples.add(domain.Sample{UID: uid, Result: outcome})
		s.metrics.AddRowOutcome(outcome, 1)

		if id, ok := stagingIDs[uid]; ok {
			if err := s.paymentRepo.MarkStagingMaterialized(ctx, s.db, id, now); err != nil {
				s.log.Warn("staging entry not marked materialized",
					zap.String("uid", uid), zap.Error(err))
			}
		}
	}

	resp.Samples = samples.list()
	return nil
}

// upsertRow is the idempotent write for one uid. The unique constraint on
// (provider, provider_payment_id) is the serialization point: losing an
// insert race falls back to update-or-skip.
func (s *Service) upsertRow(ctx context.Context, row domain.ImportRow, origin paymentdomain.Origin, now time.Time) (string, error) {
	existing, err := s.paymentRepo.FindByUID(ctx, s.db, s.provider, row.UID)
	if err != nil {
		return "", err
	}

	if existing == nil {
		inserted, err := s.paymentRepo.Insert(ctx, s.db, &paymentdomain.Payment{
			ID:                s.genID.Generate(),
			Provider:          s.provider,
			ProviderPaymentID: row.UID,
			Amount:            row.Amount,
			Currency:          row.Currency,
			StatusNormalized:  row.Status,
			TransactionType:   row.TransactionType,
			PaidAt:            row.PaidAt,
			Origin:            origin,
			RawFields:         toJSONMap(row.RawFields),
			SourceFile:        row.SourceFile,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			return "", err
		}
		if inserted {
			return domain.SampleCreated, nil
		}
		// Lost the race to a concurrent writer; re-read and fall through.
		existing, err = s.paymentRepo.FindByUID(ctx, s.db, s.provider, row.UID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", fmt.Errorf("payment %s vanished after conflicting insert", row.UID)
		}
	}

	if !s.sourceFieldsDiffer(existing, row) {
		return domain.SampleSkipped, nil
	}

	// Linkage columns are owned by the linking workflow and are carried
	// through untouched by UpdateSourceFields.
	if err := s.paymentRepo.UpdateSourceFields(ctx, s.db, &paymentdomain.Payment{
		Provider:          s.provider,
		ProviderPaymentID: row.UID,
		Amount:            row.Amount,
		Currency:          row.Currency,
		StatusNormalized:  row.Status,
		TransactionType:   row.TransactionType,
		PaidAt:            row.PaidAt,
		Origin:            origin,
		RawFields:         toJSONMap(row.RawFields),
		SourceFile:        row.SourceFile,
		UpdatedAt:         now,
	}); err != nil {
		return "", err
	}
	return domain.SampleUpdated, nil
}

func (s *Service) sourceFieldsDiffer(existing *paymentdomain.Payment, row domain.ImportRow) bool {
	if !existing.Amount.Equal(row.Amount) {
		return true
	}
	if existing.Currency != row.Currency {
		return true
	}
	if existing.StatusNormalized != row.Status {
		return true
	}
	if existing.TransactionType != row.TransactionType {
		return true
	}
	switch {
	case existing.PaidAt == nil && row.PaidAt == nil:
	case existing.PaidAt == nil || row.PaidAt == nil:
		return true
	case !existing.PaidAt.Equal(*row.PaidAt):
		return true
	}
	return false
}

func (s *Service) Audit(ctx context.Context, req domain.AuditRequest) (domain.AuditResponse, error) {
	started := time.Now()
	policy := s.policy.Get()

	if s.lookup == nil {
		return domain.AuditResponse{}, domain.ErrNoLookup
	}
	if req.Scope.Limit <= 0 || req.Scope.Limit > policy.MaxRowsPerRun {
		return domain.AuditResponse{}, domain.ErrInvalidScope
	}

	payments, err := s.paymentRepo.ListByScope(ctx, s.db, s.provider, paymentdomain.Scope{
		From:  req.Scope.FromDate,
		To:    req.Scope.ToDate,
		Limit: req.Scope.Limit,
	})
	if err != nil {
		return domain.AuditResponse{}, err
	}

	rows := make([]discrepancy.CheckedRow, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, discrepancy.CheckedRow{
			UID:             p.ProviderPaymentID,
			Amount:          p.Amount,
			TransactionType: p.TransactionType,
			Status:          p.StatusNormalized,
		})
	}

	detector := discrepancy.NewDetector(s.lookup, s.log)
	report, err := detector.Check(ctx, rows)
	if err != nil {
		return domain.AuditResponse{}, err
	}

	resp := domain.AuditResponse{
		RunID:         uuid.NewString(),
		Checked:       report.Checked,
		Matched:       report.Matched,
		Discrepancies: report.Discrepancies,
		NotFound:      report.NotFound,
		DurationMs:    time.Since(started).Milliseconds(),
	}

	_ = s.auditSvc.Record(ctx, "reconciliation.audit", "reconciliation_run", resp.RunID, map[string]any{
		"checked":       resp.Checked,
		"matched":       resp.Matched,
		"discrepancies": len(resp.Discrepancies),
		"not_found":     len(resp.NotFound),
	})

	return resp, nil
}

func (s *Service) record(ctx context.Context, action string, resp domain.Response) {
	_ = s.auditSvc.Record(ctx, action, "reconciliation_run", resp.RunID, map[string]any{
		"mode":         resp.Mode,
		"total_rows":   resp.Stats.TotalRows,
		"invalid_rate": resp.Stats.InvalidRate,
		"uids_unique":  resp.Stats.UIDsUnique,
		"created":      resp.Stats.Created,
		"updated":      resp.Stats.Updated,
		"skipped":      resp.Stats.Skipped,
		"errors":       resp.Stats.Errors,
	})
}

func stagingRows(entries []paymentdomain.StagingEntry) []domain.ImportRow {
	rows := make([]domain.ImportRow, 0, len(entries))
	for _, e := range entries {
		raw := map[string]string{"staging_id": e.ID.String()}
		for k, v := range e.RawFields {
			if sv, ok := v.(string); ok {
				raw[k] = sv
			} else {
				raw[k] = fmt.Sprint(v)
			}
		}
		rows = append(rows, domain.ImportRow{
			UID:             e.ProviderPaymentID,
			Amount:          e.Amount,
			Currency:        e.Currency,
			Status:          e.StatusNormalized,
			TransactionType: e.TransactionType,
			PaidAt:          e.PaidAt,
			RawFields:       raw,
		})
	}
	return rows
}

func originFor(source string) paymentdomain.Origin {
	switch source {
	case domain.SourceProviderSync:
		return paymentdomain.OriginProviderSync
	case domain.SourceStagingQueue:
		return paymentdomain.OriginLegacyMigration
	default:
		return paymentdomain.OriginStatementImport
	}
}

func toJSONMap(in map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}

func boundedErrors(errs []domain.RowError, limit int) []domain.RowError {
	if len(errs) <= limit {
		if errs == nil {
			return []domain.RowError{}
		}
		return errs
	}
	return errs[:limit]
}

func derefAmount(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// sampleSet keeps at most limit samples of each outcome.
type sampleSet struct {
	limit  int
	counts map[string]int
	items  []domain.Sample
}

func newSampleSet(limit int) *sampleSet {
	return &sampleSet{limit: limit, counts: map[string]int{}}
}

func (ss *sampleSet) add(s domain.Sample) {
	if ss.counts[s.Result] >= ss.limit {
		return
	}
	ss.counts[s.Result]++
	ss.items = append(ss.items, s)
}

func (ss *sampleSet) list() []domain.Sample {
	if ss.items == nil {
		return []domain.Sample{}
	}
	return ss.items
}
