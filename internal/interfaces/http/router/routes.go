package router

import (
	"net/http"

	"github.com/coopledger/backend/internal/infrastructure/logger"
	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/coopledger/backend/internal/interfaces/http/handler"
	"github.com/coopledger/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers exposed under the versioned API
type Handlers struct {
	Billing  *handler.BillingHandler
	Banking  *handler.BankingHandler
	Ledger   *handler.LedgerHandler
	Approval *handler.ApprovalHandler
	Usage    *handler.UsageHandler
	System   *handler.SystemHandler
}

// EngineConfig configures the middleware stack
type EngineConfig struct {
	Logger         *zap.Logger
	TokenValidator middleware.TokenValidator
	// MeterProvider may be nil when metrics are disabled
	MeterProvider *telemetry.MeterProvider
	// RateLimiter may be nil to disable rate limiting
	RateLimiter      *middleware.RateLimiter
	CORS             middleware.CORSConfig
	MaxBodySize      int64
	TrustedProxies   []string
	Tracing          middleware.TracingConfig
	ProfilingEnabled bool
}

// NewEngine builds the gin engine with the full middleware stack and every
// route registered.
//
// Engine-wide, in order: request id, panic recovery, tracing, request
// logging, security headers, CORS, body limit, HTTP metrics. The versioned
// API additionally authenticates the bearer token, tags the span with the
// cooperative, rate limits per cooperative and labels profiles.
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(cfg.Tracing))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	engine.Use(middleware.HTTPMetrics(cfg.MeterProvider))

	engine.GET("/health", h.System.Health)

	jwtConfig := middleware.DefaultJWTConfig(cfg.TokenValidator)
	jwtConfig.Logger = log

	NewRouter(engine, "v1").
		Use(apiMiddleware(cfg, jwtConfig)...).
		Mount(modules(h)...).
		Setup()

	return engine
}

func apiMiddleware(cfg EngineConfig, jwtConfig middleware.JWTMiddlewareConfig) []gin.HandlerFunc {
	mw := []gin.HandlerFunc{
		middleware.JWTAuthMiddlewareWithConfig(jwtConfig),
		middleware.TracingAttributeInjector(),
	}
	if cfg.RateLimiter != nil {
		mw = append(mw, middleware.RateLimit(cfg.RateLimiter))
	}
	return append(mw, middleware.Profiling(cfg.ProfilingEnabled))
}

func modules(h Handlers) []Module {
	return []Module{
		{Name: "system", Prefix: "/health", Routes: []Route{
			{http.MethodGet, "", h.System.Health},
		}},
		{Name: "billing", Prefix: "/billing", Routes: []Route{
			{http.MethodPost, "/invoices/generate", h.Billing.GenerateInvoices},
			{http.MethodGet, "/invoices", h.Billing.ListInvoices},
		}},
		{Name: "banking", Prefix: "/banking", Routes: []Route{
			{http.MethodPost, "/imports", h.Banking.ImportStatement},
			{http.MethodGet, "/import-profile", h.Banking.GetImportProfile},
			{http.MethodPut, "/import-profile", h.Banking.SaveImportProfile},
			{http.MethodGet, "/transactions", h.Banking.ListTransactions},
			{http.MethodPost, "/transactions/:id/classify", h.Banking.Classify},
			{http.MethodPost, "/transactions/:id/unclassify", h.Banking.Unclassify},
		}},
		{Name: "ledger", Prefix: "/ledger", Routes: []Route{
			{http.MethodPost, "/payments", h.Ledger.RecordPayment},
			{http.MethodGet, "/balances/:member_id", h.Ledger.GetBalance},
			{http.MethodPost, "/balances/:member_id/resolve", h.Ledger.ResolveDivergence},
			{http.MethodGet, "/postings/:member_id", h.Ledger.ListPostings},
			{http.MethodPost, "/corrections", h.Ledger.PostCorrection},
			{http.MethodPost, "/withdrawals", h.Ledger.RecordWithdrawal},
			{http.MethodPost, "/opening-balances", h.Ledger.RecordOpeningBalance},
			{http.MethodPost, "/year-close", h.Ledger.CloseYear},
			{http.MethodPost, "/verify", h.Ledger.VerifyBalances},
		}},
		{Name: "approvals", Prefix: "/approvals", Routes: []Route{
			{http.MethodPost, "", h.Approval.RequestApproval},
		}},
		{Name: "usage", Prefix: "/usage", Routes: []Route{
			{http.MethodPost, "", h.Usage.RecordUsage},
		}},
	}
}
