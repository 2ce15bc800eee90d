package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paydesk/internal/config"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/paydesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paydesk/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/paydesk/internal/payment/domain"
	paymentlinkdomain "github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	"github.com/smallbiznis/paydesk/internal/ratelimit"
	receiptdomain "github.com/smallbiznis/paydesk/internal/receipt/domain"
	webhookdomain "github.com/smallbiznis/paydesk/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	paymentSvc paymentdomain.Service
	ledgerSvc  ledgerdomain.Service
	linkSvc    paymentlinkdomain.Service
	receiptSvc receiptdomain.Service
	webhookSvc webhookdomain.Service
	limiter    *ratelimit.Limiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	PaymentSvc paymentdomain.Service
	LedgerSvc  ledgerdomain.Service
	LinkSvc    paymentlinkdomain.Service
	ReceiptSvc receiptdomain.Service
	WebhookSvc webhookdomain.Service
	Limiter    *ratelimit.Limiter  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		paymentSvc: p.PaymentSvc,
		ledgerSvc:  p.LedgerSvc,
		linkSvc:    p.LinkSvc,
		receiptSvc: p.ReceiptSvc,
		webhookSvc: p.WebhookSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerHealthRoutes()
	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Ready)
	s.engine.GET("/health/live", s.Live)
	s.engine.GET("/health/ready", s.Ready)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Transactions --------
	api.POST("/transactions/pay", s.RateLimit(ratelimit.ScopePayment), s.CreatePayment)
	api.GET("/transactions", s.ListTransactions)
	api.GET("/transactions/:id", s.GetTransaction)
	api.POST("/transactions/:id/refund", s.RefundTransaction)
	api.POST("/transactions/:id/sync", s.SyncTransaction)
	api.GET("/transactions/:id/receipts", s.ListTransactionReceipts)

	// -------- Payment Links --------
	api.POST("/payment-links", s.CreatePaymentLink)
	api.GET("/payment-links/:id", s.GetPaymentLink)
	api.POST("/payment-links/:id/resend-sms", s.RateLimit(ratelimit.ScopeResend), s.ResendPaymentLink)

	// -------- Receipts --------
	api.POST("/receipts", s.CreateReceipt)
	api.GET("/receipts/:id", s.GetReceipt)
	api.GET("/receipts/:id/pdf", s.GetReceiptPDF)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// Live answers as long as the process serves HTTP. It never touches the
// database, so an outage does not get healthy replicas restarted.
func (s *Server) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports ready only while the database answers.
func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		obsmiddleware.FromContext(ctx).Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}
