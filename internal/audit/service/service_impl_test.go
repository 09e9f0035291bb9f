package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/ajoure/reconcile/internal/audit/domain"
	"github.com/ajoure/reconcile/internal/audit/repository"
	"github.com/ajoure/reconcile/internal/clock"
	"github.com/ajoure/reconcile/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(conn),
	})
	return svc, fake
}

func TestRecordAndList(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, "reconciliation.execute", "reconciliation_run", "run-1", map[string]any{
		"created": 84,
	}))
	fake.Advance(time.Minute)
	require.NoError(t, svc.Record(ctx, "reconciliation.dry_run", "reconciliation_run", "run-2", nil))
	fake.Set(time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC))
	require.NoError(t, svc.Record(ctx, "reconciliation.audit", "reconciliation_run", "run-3", nil))

	resp, err := svc.List(ctx, auditdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 3)
	// Newest first.
	assert.Equal(t, "run-3", resp.AuditLogs[0].TargetID)
	assert.Equal(t, "run-2", resp.AuditLogs[1].TargetID)
	assert.Equal(t, "run-1", resp.AuditLogs[2].TargetID)

	filtered, err := svc.List(ctx, auditdomain.ListRequest{Action: "reconciliation.execute"})
	require.NoError(t, err)
	require.Len(t, filtered.AuditLogs, 1)
	assert.Equal(t, "run-1", filtered.AuditLogs[0].TargetID)
	assert.EqualValues(t, 84, filtered.AuditLogs[0].Metadata["created"])
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Record(context.Background(), "  ", "reconciliation_run", "run-1", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t)

	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err := svc.List(context.Background(), auditdomain.ListRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
