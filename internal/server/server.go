package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/config"
	financedomain "github.com/smallbiznis/freightpay/internal/finance/domain"
	"github.com/smallbiznis/freightpay/internal/identity"
	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
	obslogger "github.com/smallbiznis/freightpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/freightpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/freightpay/internal/observability/tracing"
	"github.com/smallbiznis/freightpay/internal/ratelimit"
	"github.com/smallbiznis/freightpay/internal/scheduler"
	webhookdomain "github.com/smallbiznis/freightpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log, obslogger.MiddlewareConfig{
		Debug:           p.Cfg.LogLevel == "debug",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(p.Metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	users          identity.Lookup
	authz          authorization.Service
	invoiceSvc     invoicedomain.Service
	webhookSvc     webhookdomain.Service
	financeSvc     financedomain.Service
	scheduler      *scheduler.Scheduler
	webhookLimiter *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	Users          identity.Lookup
	Authz          authorization.Service
	InvoiceSvc     invoicedomain.Service
	WebhookSvc     webhookdomain.Service
	FinanceSvc     financedomain.Service
	Scheduler      *scheduler.Scheduler
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		users:          p.Users,
		authz:          p.Authz,
		invoiceSvc:     p.InvoiceSvc,
		webhookSvc:     p.WebhookSvc,
		financeSvc:     p.FinanceSvc,
		scheduler:      p.Scheduler,
		webhookLimiter: p.WebhookLimiter,
	}

	if svc.cfg.WebhookSecret == "" {
		svc.log.Warn("WEBHOOK_SECRET is not set: factoring webhooks are accepted WITHOUT authentication",
			zap.String("route", "/factoring/webhooks/:provider"),
			zap.String("env", svc.cfg.Environment),
		)
	}

	svc.registerInvoiceRoutes()
	svc.registerFinanceRoutes()
	svc.registerWebhookRoutes()
	svc.engine.NoRoute(svc.noRoute)

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerInvoiceRoutes() {
	inv := s.engine.Group("/invoices", s.IdentityRequired())

	inv.POST("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	inv.GET("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	inv.GET("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoice)

	inv.POST("/:id/issue", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceIssue), s.IssueInvoice)
	inv.POST("/:id/send", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceSend), s.SendInvoice)
	inv.POST("/:id/void", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.VoidInvoice)
	inv.POST("/:id/dispute", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceDispute), s.DisputeInvoice)
	inv.POST("/:id/dispute/resolve", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceResolveDispute), s.ResolveDispute)
	inv.POST("/:id/submit-factoring", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceSubmitFactoring), s.SubmitToFactoring)
	inv.POST("/:id/payments", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceRecordPayment), s.RecordPayment)
}

func (s *Server) registerFinanceRoutes() {
	fin := s.engine.Group("/finance", s.IdentityRequired())

	fin.GET("/summary", s.authorize(authorization.ObjectFinance, authorization.ActionFinanceView), s.GetFinanceSummary)
	fin.GET("/forecast", s.authorize(authorization.ObjectFinance, authorization.ActionFinanceView), s.GetFinanceForecast)
	fin.POST("/overdue/run", s.authorize(authorization.ObjectFinance, authorization.ActionFinanceRunOverdue), s.RunOverdueSweep)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/factoring/webhooks/:provider", s.webhookAuth(), s.webhookRateLimit(), s.HandleFactoringWebhook)
}
