package services

import (
	"context"
	"testing"
	"time"

	"coreops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormAuditStore_BeginFinish(t *testing.T) {
	store := NewGormAuditStore(newTestDB(t))
	ctx := context.Background()

	rec := &models.AuditRecord{WorkspaceID: 1, Trigger: "booking.confirmed", Source: "automation.booking_confirmation", IdempotencyKey: "booking_confirmation:1"}
	require.NoError(t, store.Begin(ctx, rec))
	require.NotZero(t, rec.ID)
	assert.Equal(t, models.AuditStatusPending, rec.Status)
	assert.Equal(t, models.EventAutomationStarted, rec.EventType)

	dup, err := store.HasSuccess(ctx, 1, "booking_confirmation:1")
	require.NoError(t, err)
	assert.False(t, dup, "pending rows do not count")

	ms := int64(12)
	rec.EventType = models.EventAutomationExecuted
	rec.Status = models.AuditStatusSuccess
	rec.Result = "All actions executed"
	rec.ExecutionMs = &ms
	require.NoError(t, store.Finish(ctx, rec))

	dup, err = store.HasSuccess(ctx, 1, "booking_confirmation:1")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.HasSuccess(ctx, 2, "booking_confirmation:1")
	require.NoError(t, err)
	assert.False(t, dup)

	// terminal rows are immutable
	rec.Status = models.AuditStatusError
	assert.ErrorIs(t, store.Finish(ctx, rec), ErrAuditRecordNotFound)

	got, err := store.Get(ctx, 1, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditStatusSuccess, got.Status)
	require.NotNil(t, got.ExecutionMs)
	assert.Equal(t, int64(12), *got.ExecutionMs)
}

func TestGormAuditStore_HasSuccessEmptyKey(t *testing.T) {
	store := NewGormAuditStore(newTestDB(t))
	dup, err := store.HasSuccess(context.Background(), 1, "")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestGormAuditStore_FinishWithoutBeginInserts(t *testing.T) {
	store := NewGormAuditStore(newTestDB(t))
	rec := &models.AuditRecord{WorkspaceID: 1, EventType: models.EventAutomationFailed, Status: models.AuditStatusError}
	require.NoError(t, store.Finish(context.Background(), rec))
	assert.NotZero(t, rec.ID)
}

func TestGormAuditStore_GetScopedToWorkspace(t *testing.T) {
	store := NewGormAuditStore(newTestDB(t))
	ctx := context.Background()
	rec := &models.AuditRecord{WorkspaceID: 1, EventType: models.EventAutomationExecuted, Status: models.AuditStatusSuccess}
	require.NoError(t, store.Record(ctx, rec))

	_, err := store.Get(ctx, 2, rec.ID)
	assert.ErrorIs(t, err, ErrAuditRecordNotFound)
}

func TestGormAuditStore_List(t *testing.T) {
	db := newTestDB(t)
	store := NewGormAuditStore(db)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seed := []models.AuditRecord{
		{WorkspaceID: 1, EventType: models.EventAutomationExecuted, Source: "automation.booking_confirmation", Status: models.AuditStatusSuccess, CreatedAt: base},
		{WorkspaceID: 1, EventType: models.EventAutomationFailed, Source: "automation.form_notification", Status: models.AuditStatusError, CreatedAt: base.Add(time.Minute)},
		{WorkspaceID: 1, EventType: models.EventAutomationExecuted, Source: "Automation.Inventory_low_alert", Status: models.AuditStatusSuccess, CreatedAt: base.Add(2 * time.Minute)},
		{WorkspaceID: 1, EventType: "user_login", Source: "auth", Status: models.AuditStatusSuccess, CreatedAt: base.Add(3 * time.Minute)},
		{WorkspaceID: 2, EventType: models.EventAutomationExecuted, Source: "automation.booking_confirmation", Status: models.AuditStatusSuccess, CreatedAt: base},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	tests := []struct {
		name      string
		query     AuditQuery
		wantTotal int64
		wantFirst string
	}{
		{"all for workspace newest first", AuditQuery{WorkspaceID: 1}, 4, "auth"},
		{"by event type", AuditQuery{WorkspaceID: 1, EventType: models.EventAutomationExecuted}, 2, "Automation.Inventory_low_alert"},
		{"source prefix is case insensitive", AuditQuery{WorkspaceID: 1, SourcePrefix: "AUTOMATION."}, 3, "Automation.Inventory_low_alert"},
		{"skip", AuditQuery{WorkspaceID: 1, Skip: 3}, 4, "automation.booking_confirmation"},
		{"since", AuditQuery{WorkspaceID: 1, Since: ptrTime(base.Add(90 * time.Second))}, 2, "auth"},
		{"other workspace", AuditQuery{WorkspaceID: 2}, 1, "automation.booking_confirmation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, total, err := store.List(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			require.NotEmpty(t, recs)
			assert.Equal(t, tt.wantFirst, recs[0].Source)
		})
	}

	recs, _, err := store.List(ctx, AuditQuery{WorkspaceID: 1, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func ptrTime(t time.Time) *time.Time { return &t }
