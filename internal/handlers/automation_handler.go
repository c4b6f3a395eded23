package handlers

import (
	"errors"
	"net/http"
	"strings"

	"coreops/internal/middleware"
	"coreops/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler serves the rule, feature and engine admin views plus
// event intake.
type AutomationHandler struct {
	registry   *services.RuleRegistry
	stats      *services.AutomationStatsService
	dispatcher *services.Dispatcher
	logger     *logrus.Logger
}

func NewAutomationHandler(registry *services.RuleRegistry, stats *services.AutomationStatsService, dispatcher *services.Dispatcher, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationHandler{registry: registry, stats: stats, dispatcher: dispatcher, logger: logger}
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type EventRequest struct {
	Trigger string                 `json:"trigger" binding:"required"`
	Payload map[string]interface{} `json:"payload"`
}

func (h *AutomationHandler) ListRules(c *gin.Context) {
	rules, err := h.stats.Rules(c.Request.Context(), middleware.WorkspaceID(c))
	if err != nil {
		h.logger.Errorf("list automation rules: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	key := c.Param("key")
	if err := h.registry.SetEnabled(c.Request.Context(), middleware.WorkspaceID(c), key, *req.Enabled); err != nil {
		h.writeToggleError(c, err)
		return
	}
	h.logger.WithFields(logrus.Fields{"workspace_id": middleware.WorkspaceID(c), "rule": key, "enabled": *req.Enabled}).
		Info("automation rule toggled")
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": *req.Enabled})
}

// ResetRule drops the workspace override.
func (h *AutomationHandler) ResetRule(c *gin.Context) {
	key := c.Param("key")
	ws := middleware.WorkspaceID(c)
	if err := h.registry.ClearOverride(c.Request.Context(), ws, key); err != nil {
		h.writeToggleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": h.registry.IsEnabled(c.Request.Context(), ws, key)})
}

func (h *AutomationHandler) ListFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"features": h.stats.Features(c.Request.Context(), middleware.WorkspaceID(c))})
}

func (h *AutomationHandler) ToggleFeature(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	key := c.Param("key")
	if err := h.registry.SetFeature(c.Request.Context(), middleware.WorkspaceID(c), key, *req.Enabled); err != nil {
		h.writeToggleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": *req.Enabled})
}

func (h *AutomationHandler) Metrics(c *gin.Context) {
	m, err := h.stats.Metrics(c.Request.Context(), middleware.WorkspaceID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load metrics", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *AutomationHandler) EngineStatus(c *gin.Context) {
	st, err := h.stats.EngineStatus(c.Request.Context(), middleware.WorkspaceID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load engine status", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *AutomationHandler) RecentFailures(c *gin.Context) {
	failures, err := h.stats.RecentFailures(c.Request.Context(), middleware.WorkspaceID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load failures", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"failures": failures})
}

// FireEvent queues a business event for the authenticated workspace.
func (h *AutomationHandler) FireEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	trigger := strings.TrimSpace(req.Trigger)
	ws := middleware.WorkspaceID(c)
	if err := h.dispatcher.Enqueue(trigger, ws, services.Payload(req.Payload)); err != nil {
		h.logger.WithFields(logrus.Fields{"workspace_id": ws, "trigger": trigger}).Warnf("event rejected: %v", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Automation queue full", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"trigger": trigger, "queued": true})
}

func (h *AutomationHandler) writeToggleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRuleNotFound), errors.Is(err, services.ErrFeatureNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Message: err.Error()})
	default:
		h.logger.Errorf("save toggle: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save toggle", Message: err.Error()})
	}
}

// RegisterAutomationRoutes mounts the automation admin routes. r must
// already be authenticated; the owner check is applied here.
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automation", middleware.RequireRole("owner"))
	{
		auto.GET("/rules", handler.ListRules)
		auto.PATCH("/rules/:key/toggle", handler.ToggleRule)
		auto.DELETE("/rules/:key/toggle", handler.ResetRule)
		auto.GET("/features", handler.ListFeatures)
		auto.PATCH("/features/:key/toggle", handler.ToggleFeature)
		auto.GET("/metrics", handler.Metrics)
		auto.GET("/engine-status", handler.EngineStatus)
		auto.GET("/failures", handler.RecentFailures)
		auto.POST("/events", handler.FireEvent)
	}
}
