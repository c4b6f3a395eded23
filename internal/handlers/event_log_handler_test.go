package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"coreops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogHandler_List(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, 1, 1, "owner")
	base := time.Now().Add(-time.Hour).UTC()

	for i, src := range []string{"automation.booking_confirmation", "automation.form_notification", "auth"} {
		require.NoError(t, env.db.Create(&models.AuditRecord{
			WorkspaceID: 1, EventType: models.EventAutomationExecuted, Source: src,
			Status: models.AuditStatusSuccess, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	w := env.do(t, http.MethodGet, "/api/v1/event-logs?source=automation.&limit=1", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data  []models.AuditRecord `json:"data"`
		Total int64                `json:"total"`
		Limit int                  `json:"limit"`
	}
	decode(t, w, &page)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "automation.form_notification", page.Data[0].Source)

	since := url.QueryEscape(base.Add(90 * time.Second).Format(time.RFC3339))
	w = env.do(t, http.MethodGet, "/api/v1/event-logs?since="+since, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 50, page.Limit)

	w = env.do(t, http.MethodGet, "/api/v1/event-logs?until=yesterday", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventLogHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	rec := models.AuditRecord{WorkspaceID: 1, EventType: models.EventAutomationSkipped, Status: models.AuditStatusSkipped, Result: "Manual override active"}
	require.NoError(t, env.db.Create(&rec).Error)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/event-logs/%d", rec.ID), env.token(t, 1, 1, "owner"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.AuditRecord
	decode(t, w, &got)
	assert.Equal(t, "Manual override active", got.Result)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/event-logs/%d", rec.ID), env.token(t, 2, 1, "owner"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/event-logs/abc", env.token(t, 1, 1, "owner"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
