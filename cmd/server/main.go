package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	approvalapp "github.com/coopledger/backend/internal/application/approval"
	bankingapp "github.com/coopledger/backend/internal/application/banking"
	billingapp "github.com/coopledger/backend/internal/application/billing"
	equipmentapp "github.com/coopledger/backend/internal/application/equipment"
	ledgerapp "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/infrastructure/auth"
	"github.com/coopledger/backend/internal/infrastructure/cache"
	"github.com/coopledger/backend/internal/infrastructure/config"
	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/storage"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/coopledger/backend/internal/interfaces/http/handler"
	"github.com/coopledger/backend/internal/interfaces/http/middleware"
	"github.com/coopledger/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}

	// The bootstrap logger is used until the OTLP log bridge is up
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	tel, err := setupTelemetry(ctx, cfg, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	log := bootLog
	if tel.logs.IsEnabled() {
		core := tel.logs.Core(logger.ParseLevel(cfg.Log.Level))
		if log, err = logger.New(logCfg, core); err != nil {
			bootLog.Fatal("Failed to initialize logger", zap.Error(err))
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting cooperative ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.ParseGormLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log)

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithTracing(dbTracing),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	var metrics *telemetry.LedgerMetrics
	if tel.meter.IsEnabled() {
		if metrics, err = telemetry.NewLedgerMetrics(tel.meter.Meter("coop-ledger")); err != nil {
			log.Warn("Ledger metrics unavailable", zap.Error(err))
			metrics = nil
		}
	}

	// Approval store: Redis when configured so every instance sees pending requests
	approvalStore, err := cache.NewApprovalStoreFactory(cfg.Ledger.ApprovalBackend, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Ledger.ApprovalRedisFallback),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create approval store", zap.Error(err))
	}

	var archive bankingapp.StatementArchive
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3StatementArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create statement archive", zap.Error(err))
		}
		if cfg.Storage.CreateBucket {
			if err := s3Archive.EnsureBucket(ctx); err != nil {
				log.Fatal("Failed to create statement bucket", zap.Error(err), zap.String("bucket", s3Archive.Bucket()))
			}
		}
		archive = s3Archive
		log.Info("Statement archive enabled", zap.String("bucket", s3Archive.Bucket()))
	}

	// Initialize repositories
	scope := persistence.NewGormTransactionScope(db.DB)
	members := persistence.NewGormMemberDirectory(db.DB)
	machines := persistence.NewGormMachineRegistry(db.DB)
	usageRepo := persistence.NewGormUsageEventRepository(db.DB)
	postingRepo := persistence.NewGormPostingRepository(db.DB)
	balanceRepo := persistence.NewGormBalanceRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	profileRepo := persistence.NewGormImportProfileRepository(db.DB)
	bankTxRepo := persistence.NewGormBankTransactionRepository(db.DB)

	// Initialize application services
	writer := ledgerapp.NewPostingWriter(metrics)
	dualControl := approvalapp.NewDualControlService(approvalStore, cfg.Ledger.ApprovalTTL, metrics)
	ledgerService := ledgerapp.NewLedgerService(scope, postingRepo, balanceRepo, members, writer, dualControl, metrics)
	billingService := billingapp.NewBillingService(scope, invoiceRepo, members, machines, usageRepo, writer, metrics)
	importService := bankingapp.NewImportService(profileRepo, bankTxRepo, archive, metrics, bankingapp.ImportOptions{
		MaxFileSize:  cfg.Import.MaxFileSize,
		MaxRowErrors: cfg.Import.MaxRowErrors,
	})
	classificationService := bankingapp.NewClassificationService(scope, members, machines, writer, metrics)
	usageService := equipmentapp.NewUsageService(machines, usageRepo, members)

	middleware.SetupValidator()

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine := router.NewEngine(router.EngineConfig{
		Logger:         log,
		TokenValidator: auth.NewJWTValidator(cfg.JWT),
		MeterProvider:  tel.meter,
		RateLimiter:    limiter,
		CORS:           cors,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		ProfilingEnabled: tel.profiler.IsEnabled(),
	}, router.Handlers{
		Billing:  handler.NewBillingHandler(billingService),
		Banking:  handler.NewBankingHandler(importService, classificationService, cfg.Import.MaxFileSize),
		Ledger:   handler.NewLedgerHandler(ledgerService),
		Approval: handler.NewApprovalHandler(dualControl),
		Usage:    handler.NewUsageHandler(usageService),
		System:   handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.Pinger{"database": db}),
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if limiter != nil {
		limiter.Stop()
	}
	tel.shutdown(shutdownCtx, log)

	log.Info("Server exited gracefully")
}

// telemetryStack holds the OpenTelemetry providers and the profiler. Every
// member is usable when its feature is disabled.
type telemetryStack struct {
	traces   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*telemetryStack, error) {
	tc := cfg.Telemetry
	tel := &telemetryStack{}
	var err error

	collector := telemetry.Collector{
		Endpoint:    tc.CollectorEndpoint,
		Insecure:    tc.Insecure,
		ServiceName: tc.ServiceName,
	}

	tel.traces, err = telemetry.NewTracerProvider(ctx, telemetry.TraceConfig{
		Enabled:       tc.Enabled,
		Collector:     collector,
		SamplingRatio: tc.SamplingRatio,
	}, log)
	if err != nil {
		return nil, err
	}

	tel.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:        tc.Enabled && tc.MetricsEnabled,
		Collector:      collector,
		ExportInterval: tc.MetricsInterval,
	}, log)
	if err != nil {
		return nil, err
	}

	tel.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:   tc.Enabled && tc.LogsEnabled,
		Collector: collector,
	}, log)
	if err != nil {
		return nil, err
	}

	tel.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.ProfilingEndpoint,
		ApplicationName: tc.ServiceName,
		Memory:          true,
	}, log)
	if err != nil {
		return nil, err
	}
	if tel.profiler.IsEnabled() && tc.Enabled {
		if err := tel.traces.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}
	return tel, nil
}

func (t *telemetryStack) shutdown(ctx context.Context, log *zap.Logger) {
	if err := t.profiler.Stop(); err != nil {
		log.Warn("Profiler shutdown", zap.Error(err))
	}
	for name, fn := range map[string]func(context.Context) error{
		"traces":  t.traces.Shutdown,
		"metrics": t.meter.Shutdown,
		"logs":    t.logs.Shutdown,
	} {
		if err := fn(ctx); err != nil {
			log.Warn("Telemetry shutdown", zap.String("provider", name), zap.Error(err))
		}
	}
}
