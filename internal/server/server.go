package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ajoure/reconcile/internal/audit"
	auditdomain "github.com/ajoure/reconcile/internal/audit/domain"
	"github.com/ajoure/reconcile/internal/config"
	"github.com/ajoure/reconcile/internal/payment"
	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	"github.com/ajoure/reconcile/internal/provider"
	"github.com/ajoure/reconcile/internal/reconciliation"
	recondomain "github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	audit.Module,
	payment.Module,
	provider.Module,
	reconciliation.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type Server struct {
	engine            *gin.Engine
	cfg               config.Config
	provider          string
	paymentSvc        paymentdomain.Service
	reconciliationSvc recondomain.Service
	auditSvc          auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	PaymentSvc        paymentdomain.Service
	ReconciliationSvc recondomain.Service
	AuditSvc          auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		provider:          p.Cfg.Provider.Name,
		paymentSvc:        p.PaymentSvc,
		reconciliationSvc: p.ReconciliationSvc,
		auditSvc:          p.AuditSvc,
	}
}

func registerRoutes(s *Server) {
	api := s.engine.Group("/api/v1")

	api.POST("/reconciliation/runs", s.RunReconciliation)
	api.POST("/reconciliation/audit", s.RunDiscrepancyAudit)
	api.GET("/payments/unified", s.GetUnifiedPayments)
	api.GET("/audit-logs", s.ListAuditLogs)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
