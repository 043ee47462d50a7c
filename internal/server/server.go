package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	autorechargedomain "github.com/smallbiznis/credits/internal/autorecharge/domain"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/observability"
	obsmiddleware "github.com/smallbiznis/credits/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/credits/internal/observability/metrics"
	obstracing "github.com/smallbiznis/credits/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/ratelimit"
	rechargedomain "github.com/smallbiznis/credits/internal/recharge/domain"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *telemetry.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	obsCfg := p.ObsCfg
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(p.HTTPMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	walletSvc    walletdomain.Service
	configSvc    autorechargedomain.Service
	rechargeSvc  rechargedomain.Service
	customerSvc  paymentdomain.CustomerService
	webhookSvc   paymentdomain.WebhookService
	debitLimiter *ratelimit.DebitLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	WalletSvc    walletdomain.Service
	ConfigSvc    autorechargedomain.Service
	RechargeSvc  rechargedomain.Service
	CustomerSvc  paymentdomain.CustomerService
	WebhookSvc   paymentdomain.WebhookService
	DebitLimiter *ratelimit.DebitLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		walletSvc:    p.WalletSvc,
		configSvc:    p.ConfigSvc,
		rechargeSvc:  p.RechargeSvc,
		customerSvc:  p.CustomerSvc,
		webhookSvc:   p.WebhookSvc,
		debitLimiter: p.DebitLimiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", TenantRequired())

	// -------- Wallet --------
	api.GET("/wallet", s.GetWallet)
	api.POST("/wallet", s.ProvisionWallet)
	api.PATCH("/wallet/settings", s.UpdateWalletSettings)
	api.GET("/wallet/ledger", s.ListLedger)
	api.GET("/wallet/reconciliation", s.VerifyBalance)
	api.POST("/wallet/debit", s.DebitRateLimit(), s.Debit)
	api.POST("/wallet/credit", s.Credit)

	// -------- Auto-recharge --------
	api.GET("/auto-recharge", s.GetAutoRecharge)
	api.PUT("/auto-recharge", s.UpsertAutoRecharge)
	api.DELETE("/auto-recharge", s.DisableAutoRecharge)

	// -------- Payment --------
	api.POST("/payment/customer", s.EnsureCustomer)
	api.POST("/payment/setup-intent", s.CreateSetupIntent)
	api.POST("/payment/portal-session", s.CreatePortalSession)

	// -------- Recharge attempts --------
	api.GET("/recharge/attempts", s.ListRechargeAttempts)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
