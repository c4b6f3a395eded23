package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coreops/internal/config"
	"coreops/internal/handlers"
	"coreops/internal/middleware"
	"coreops/internal/models"
	"coreops/internal/observability"
	"coreops/internal/services"
	"coreops/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

var flagAutoMigrate bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coreops server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagAutoMigrate, "migrate", false, "migrate the schema before serving")
	rootCmd.AddCommand(runCmd)
}

// app holds the wired service graph behind the HTTP server.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	logger     *logrus.Logger
	email      notify.EmailProvider
	sms        notify.SMSProvider
	registry   *services.RuleRegistry
	audit      *services.GormAuditStore
	executor   *services.ActionExecutor
	dispatcher *services.Dispatcher
	hub        *services.ConnectionHub
	stats      *services.AutomationStatsService
	messages   *services.InternalMessageService
}

func newApp(cfg *config.Config, db *gorm.DB, log *logrus.Logger) *app {
	a := &app{cfg: cfg, db: db, logger: log}
	a.email = newEmailProvider(cfg, log)
	a.sms = newSMSProvider(cfg, log)

	a.registry = services.NewRuleRegistry(services.NewGormToggleStore(db), log)
	a.audit = services.NewGormAuditStore(db)
	inbox := services.NewGormInboxStore(db)
	a.executor = services.NewActionExecutor(a.email, a.sms, inbox, a.registry, log,
		services.WithCircuitBreakers(cfg.Automation.Breaker))
	a.dispatcher = services.NewDispatcher(a.registry, a.executor, a.audit, inbox, services.DispatcherConfig{
		Workers:   cfg.Automation.Workers,
		QueueSize: cfg.Automation.QueueSize,
	}, log)

	limiter := services.NewRateLimiter(cfg.Realtime.MessagesPerSecond, time.Second)
	a.hub = services.NewConnectionHub(cfg.Realtime.MaxConnectionsPerWorkspace, limiter, log)
	a.stats = services.NewAutomationStatsService(db, a.registry, a.executor, a.dispatcher, log)
	a.messages = services.NewInternalMessageService(db, a.hub, cfg.Realtime.MaxMessageLength, log)
	return a
}

func newEmailProvider(cfg *config.Config, log *logrus.Logger) notify.EmailProvider {
	switch strings.ToLower(cfg.Email.Provider) {
	case "smtp":
		s := cfg.Email.SMTP
		return notify.NewSMTPEmail(notify.SMTPConfig{
			Host: s.Host, Port: s.Port, User: s.User, Password: s.Password, From: s.From, Timeout: s.Timeout,
		}, log)
	default:
		return notify.NewMockEmail(log)
	}
}

func newSMSProvider(cfg *config.Config, log *logrus.Logger) notify.SMSProvider {
	switch strings.ToLower(cfg.SMS.Provider) {
	case "twilio":
		t := cfg.SMS.Twilio
		tc := notify.DefaultTwilioConfig()
		if t.BaseURL != "" {
			tc.BaseURL = t.BaseURL
		}
		if t.Timeout > 0 {
			tc.Timeout = t.Timeout
		}
		tc.AccountSID, tc.AuthToken, tc.From = t.AccountSID, t.AuthToken, t.From
		return notify.NewTwilioSMS(tc, log)
	default:
		return notify.NewMockSMS(log)
	}
}

func (a *app) router() *gin.Engine {
	cfg := a.cfg
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(a.logger))
	r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	r.Use(corsMiddleware(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))

	health := handlers.NewHealthHandler(a.db, a.email, a.sms, a.hub, a.logger)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	if cfg.Monitoring.Enabled {
		r.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	authed := api.Group("", middleware.AuthMiddleware(cfg))
	handlers.RegisterAutomationRoutes(authed, handlers.NewAutomationHandler(a.registry, a.stats, a.dispatcher, a.logger))
	handlers.RegisterEventLogRoutes(authed, handlers.NewEventLogHandler(a.audit))
	handlers.RegisterInternalMessageRoutes(authed, handlers.NewInternalMessageHandler(a.messages))
	handlers.RegisterRealtimeRoutes(api, authed, handlers.NewRealtimeHandler(a.hub, cfg, a.logger))
	return r
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	cors := cfg.Security.CORS
	origins := "*"
	methods := "GET, POST, PATCH, DELETE, OPTIONS"
	headers := "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID, Cache-Control, X-Requested-With"
	if len(cors.AllowedOrigins) > 0 {
		origins = strings.Join(cors.AllowedOrigins, ", ")
	}
	if len(cors.AllowedMethods) > 0 {
		methods = strings.Join(cors.AllowedMethods, ", ")
	}
	if len(cors.AllowedHeaders) > 0 {
		headers = strings.Join(cors.AllowedHeaders, ", ")
	}
	return func(c *gin.Context) {
		if !cors.Enabled {
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Allow-Methods", methods)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := config.Load()
	log, err := config.InitLogger(cfg)
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.SetupTracing(parent, cfg)
	if err != nil {
		log.Warnf("tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	if flagAutoMigrate {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	a := newApp(cfg, db, log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- a.dispatcher.Run(ctx) }()

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting coreops %s on %s", Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Errorf("Server failed: %v", err)
		}
		stop()
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	a.hub.Shutdown(websocket.CloseGoingAway, "server shutting down")
	if err := <-dispatcherDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Dispatcher stopped: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnf("tracing shutdown: %v", err)
	}

	log.Info("Server exited")
	return nil
}
