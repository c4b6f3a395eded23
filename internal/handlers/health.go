package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"coreops/internal/services"
	"coreops/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	db     *gorm.DB
	email  notify.EmailProvider
	sms    notify.SMSProvider
	hub    *services.ConnectionHub
	logger *logrus.Logger
}

func NewHealthHandler(db *gorm.DB, email notify.EmailProvider, sms notify.SMSProvider, hub *services.ConnectionHub, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthHandler{db: db, email: email, sms: sms, hub: hub, logger: logger}
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// Version is overwritten by the CLI at startup.
var Version = "dev"

// Health checks the database and both providers. A failing provider
// degrades the status; a failing database makes it unhealthy (503).
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	if !h.checkDatabase(ctx, &resp) {
		resp.Status = "unhealthy"
	}
	if h.email != nil {
		h.checkProvider(ctx, &resp, "email", h.email.Name(), h.email.Health)
	}
	if h.sms != nil {
		h.checkProvider(ctx, &resp, "sms", h.sms.Name(), h.sms.Health)
	}
	if h.hub != nil {
		resp.Services["realtime"] = ServiceInfo{Status: "healthy", Details: h.hub.Stats()}
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Ready only needs the database.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	var resp HealthResponse
	resp.Services = make(map[string]ServiceInfo)
	ready := h.checkDatabase(ctx, &resp)
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready, "timestamp": time.Now()})
}

func (h *HealthHandler) checkDatabase(ctx context.Context, resp *HealthResponse) bool {
	start := time.Now()
	if h.db == nil {
		resp.Services["database"] = ServiceInfo{Status: "unhealthy", Error: "database not initialized"}
		return false
	}
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.logger.Warnf("database health check failed: %v", err)
		resp.Services["database"] = ServiceInfo{Status: "unhealthy", Error: err.Error()}
		return false
	}
	resp.Services["database"] = ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
	return true
}

func (h *HealthHandler) checkProvider(ctx context.Context, resp *HealthResponse, key, name string, healthy func(context.Context) bool) {
	start := time.Now()
	info := ServiceInfo{Status: "healthy", Details: gin.H{"provider": name}}
	if !healthy(ctx) {
		info.Status = "unhealthy"
		info.Error = "provider health check failed"
		if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}
	info.Latency = time.Since(start).String()
	resp.Services[key] = info
}
