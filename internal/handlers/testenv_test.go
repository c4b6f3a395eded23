package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coreops/internal/config"
	"coreops/internal/middleware"
	"coreops/internal/models"
	"coreops/internal/services"
	"coreops/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "handler-secret"

type testEnv struct {
	cfg        *config.Config
	db         *gorm.DB
	email      *notify.MockEmail
	registry   *services.RuleRegistry
	audit      *services.GormAuditStore
	dispatcher *services.Dispatcher
	hub        *services.ConnectionHub
	router     *gin.Engine
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", name)),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	cfg := config.GetDefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Realtime.PongWait = 2 * time.Second
	log := quietLogger()

	env := &testEnv{cfg: cfg, db: db, email: notify.NewMockEmail(log)}
	sms := notify.NewMockSMS(log)
	env.registry = services.NewRuleRegistry(services.NewGormToggleStore(db), log)
	env.audit = services.NewGormAuditStore(db)
	inbox := services.NewGormInboxStore(db)
	exec := services.NewActionExecutor(env.email, sms, inbox, env.registry, log)
	env.dispatcher = services.NewDispatcher(env.registry, exec, env.audit, inbox, services.DispatcherConfig{Workers: 1, QueueSize: 2}, log)
	env.hub = services.NewConnectionHub(2, services.NewRateLimiter(5, time.Second), log)
	stats := services.NewAutomationStatsService(db, env.registry, exec, env.dispatcher, log)
	msgs := services.NewInternalMessageService(db, env.hub, 20, log)

	r := gin.New()
	api := r.Group("/api/v1")
	authed := api.Group("", middleware.AuthMiddleware(cfg))
	health := NewHealthHandler(db, env.email, sms, env.hub, log)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	RegisterAutomationRoutes(authed, NewAutomationHandler(env.registry, stats, env.dispatcher, log))
	RegisterEventLogRoutes(authed, NewEventLogHandler(env.audit))
	RegisterInternalMessageRoutes(authed, NewInternalMessageHandler(msgs))
	RegisterRealtimeRoutes(api, authed, NewRealtimeHandler(env.hub, cfg, log))
	env.router = r
	return env
}

func (e *testEnv) token(t *testing.T, ws, uid uint, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(testSecret, middleware.Claims{UserID: uid, WorkspaceID: ws, Name: fmt.Sprintf("user-%d", uid), Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}
