package handlers

import (
	"errors"
	"net/http"
	"time"

	"coreops/internal/middleware"
	"coreops/internal/services"

	"github.com/gin-gonic/gin"
)

// EventLogHandler is the read-only audit trail API.
type EventLogHandler struct {
	store *services.GormAuditStore
}

func NewEventLogHandler(store *services.GormAuditStore) *EventLogHandler {
	return &EventLogHandler{store: store}
}

func (h *EventLogHandler) List(c *gin.Context) {
	q := services.AuditQuery{
		WorkspaceID:  middleware.WorkspaceID(c),
		EventType:    c.Query("event_type"),
		SourcePrefix: c.Query("source"),
		Skip:         queryInt(c, "skip", 0),
		Limit:        queryInt(c, "limit", 50),
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	for key, dst := range map[string]**time.Time{"since": &q.Since, "until": &q.Until} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid " + key, Message: "expected RFC3339 timestamp"})
			return
		}
		*dst = &t
	}

	recs, total, err := h.store.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list event logs", Message: err.Error()})
		return
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	c.JSON(http.StatusOK, PaginatedResponse{Data: recs, Total: total, Skip: q.Skip, Limit: limit})
}

func (h *EventLogHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a positive integer"})
		return
	}
	rec, err := h.store.Get(c.Request.Context(), middleware.WorkspaceID(c), id)
	if errors.Is(err, services.ErrAuditRecordNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load event log", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func RegisterEventLogRoutes(r *gin.RouterGroup, handler *EventLogHandler) {
	logs := r.Group("/event-logs", middleware.RequireRole("owner"))
	{
		logs.GET("", handler.List)
		logs.GET("/:id", handler.Get)
	}
}
