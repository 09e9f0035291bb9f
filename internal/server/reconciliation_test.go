package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	auditdomain "github.com/ajoure/reconcile/internal/audit/domain"
	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	recondomain "github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/gin-gonic/gin"
)

type fakeReconService struct {
	resp     recondomain.Response
	runErr   error
	auditErr error
	lastReq  recondomain.Request
	runCalls int
}

func (f *fakeReconService) Run(ctx context.Context, req recondomain.Request) (recondomain.Response, error) {
	f.runCalls++
	f.lastReq = req
	_ = ctx
	if f.runErr != nil {
		return recondomain.Response{}, f.runErr
	}
	return f.resp, nil
}

func (f *fakeReconService) Audit(ctx context.Context, req recondomain.AuditRequest) (recondomain.AuditResponse, error) {
	_ = ctx
	_ = req
	if f.auditErr != nil {
		return recondomain.AuditResponse{}, f.auditErr
	}
	return recondomain.AuditResponse{RunID: "audit-1"}, nil
}

type fakePaymentService struct {
	items []paymentdomain.UnifiedPayment
	err   error
}

func (f *fakePaymentService) UnifiedView(ctx context.Context, provider string, scope paymentdomain.Scope) ([]paymentdomain.UnifiedPayment, error) {
	_ = ctx
	_ = provider
	_ = scope
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeAuditLogService struct {
	listErr error
	lastReq auditdomain.ListRequest
}

func (f *fakeAuditLogService) Record(ctx context.Context, action, targetType, targetID string, metadata map[string]any) error {
	_ = ctx
	_ = action
	_ = targetType
	_ = targetID
	_ = metadata
	return nil
}

func (f *fakeAuditLogService) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	_ = ctx
	f.lastReq = req
	if f.listErr != nil {
		return auditdomain.ListResponse{}, f.listErr
	}
	return auditdomain.ListResponse{AuditLogs: []auditdomain.AuditLog{}}, nil
}

func newTestRouter(recon *fakeReconService, payments *fakePaymentService, logs *fakeAuditLogService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	srv := &Server{
		provider:          "cloudpayments",
		paymentSvc:        payments,
		reconciliationSvc: recon,
		auditSvc:          logs,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv.engine = router
	registerRoutes(srv)
	return router
}

func TestRunReconciliationHandler(t *testing.T) {
	recon := &fakeReconService{resp: recondomain.Response{
		RunID:   "run-1",
		Success: true,
		Mode:    recondomain.ModeDryRun,
	}}
	router := newTestRouter(recon, &fakePaymentService{}, &fakeAuditLogService{})

	body := `{"mode":"dry_run","scope":{"limit":100},"input":[{"name":"march.csv","rows":[{"TransactionId":"t-1","Amount":"10.00"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if recon.runCalls != 1 {
		t.Fatalf("expected one run call, got %d", recon.runCalls)
	}
	if recon.lastReq.Mode != recondomain.ModeDryRun {
		t.Fatalf("expected dry_run mode, got %q", recon.lastReq.Mode)
	}

	var out recondomain.Response
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response unparsable: %v", err)
	}
	if out.RunID != "run-1" {
		t.Fatalf("expected run-1, got %q", out.RunID)
	}
}

func TestRunReconciliationBlockedIsOK(t *testing.T) {
	recon := &fakeReconService{resp: recondomain.Response{
		RunID:   "run-2",
		Success: false,
		Mode:    recondomain.ModeExecuteBlocked,
	}}
	router := newTestRouter(recon, &fakePaymentService{}, &fakeAuditLogService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs",
		bytes.NewBufferString(`{"mode":"execute","scope":{"limit":100},"input":[{"name":"a.csv","rows":[{}]}]}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for blocked run, got %d", resp.Code)
	}

	var out recondomain.Response
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response unparsable: %v", err)
	}
	if out.Mode != recondomain.ModeExecuteBlocked {
		t.Fatalf("expected execute_blocked, got %q", out.Mode)
	}
	if out.Success {
		t.Fatal("expected success=false for blocked run")
	}
}

func TestRunReconciliationValidationError(t *testing.T) {
	recon := &fakeReconService{runErr: recondomain.ErrInvalidMode}
	router := newTestRouter(recon, &fakePaymentService{}, &fakeAuditLogService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs",
		bytes.NewBufferString(`{"mode":"apply","scope":{"limit":100}}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	var out errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response unparsable: %v", err)
	}
	if out.Error.Code != "invalid_mode" {
		t.Fatalf("expected code invalid_mode, got %q", out.Error.Code)
	}
}

func TestRunReconciliationMalformedBody(t *testing.T) {
	router := newTestRouter(&fakeReconService{}, &fakePaymentService{}, &fakeAuditLogService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs", bytes.NewBufferString(`{`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRunDiscrepancyAuditNoLookup(t *testing.T) {
	recon := &fakeReconService{auditErr: recondomain.ErrNoLookup}
	router := newTestRouter(recon, &fakePaymentService{}, &fakeAuditLogService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/audit",
		bytes.NewBufferString(`{"scope":{"limit":100}}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestGetUnifiedPaymentsHandler(t *testing.T) {
	payments := &fakePaymentService{items: []paymentdomain.UnifiedPayment{
		{Key: "cloudpayments:A", ProviderPaymentID: "A", Source: "canonical"},
		{Key: "cloudpayments:B", ProviderPaymentID: "B", Source: "staging"},
	}}
	router := newTestRouter(&fakeReconService{}, payments, &fakeAuditLogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/unified?from=2024-03-01&limit=50", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var out struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response unparsable: %v", err)
	}
	if out.Total != 2 {
		t.Fatalf("expected 2 payments, got %d", out.Total)
	}
}

func TestGetUnifiedPaymentsBadLimit(t *testing.T) {
	router := newTestRouter(&fakeReconService{}, &fakePaymentService{}, &fakeAuditLogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/unified?limit=zero", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestListAuditLogsHandler(t *testing.T) {
	logs := &fakeAuditLogService{}
	router := newTestRouter(&fakeReconService{}, &fakePaymentService{}, logs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?action=reconciliation.execute&limit=20", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if logs.lastReq.Action != "reconciliation.execute" {
		t.Fatalf("expected action filter, got %q", logs.lastReq.Action)
	}
	if logs.lastReq.Limit != 20 {
		t.Fatalf("expected limit 20, got %d", logs.lastReq.Limit)
	}
}
