package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/customer"
	customerdomain "github.com/smallbiznis/qrpay/internal/customer/domain"
	"github.com/smallbiznis/qrpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/qrpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/qrpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/qrpay/internal/observability/tracing"
	"github.com/smallbiznis/qrpay/internal/ordercreated"
	"github.com/smallbiznis/qrpay/internal/outbox"
	"github.com/smallbiznis/qrpay/internal/payment"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"github.com/smallbiznis/qrpay/internal/providers"
	"github.com/smallbiznis/qrpay/internal/providers/pdf"
	"github.com/smallbiznis/qrpay/internal/providers/qrcode"
	"github.com/smallbiznis/qrpay/internal/redisx"
	"github.com/smallbiznis/qrpay/internal/webhook"
	webhookdomain "github.com/smallbiznis/qrpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	redisx.Module,
	customer.Module,
	payment.Module,
	outbox.Module,
	webhook.Module,
	ordercreated.Module,
	providers.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	customerSvc customerdomain.Service
	paymentSvc  paymentdomain.Service
	webhookSvc  webhookdomain.Service
	receipts    pdf.Provider
	qr          qrcode.Renderer
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	CustomerSvc customerdomain.Service
	PaymentSvc  paymentdomain.Service
	WebhookSvc  webhookdomain.Service
	Receipts    pdf.Provider
	QR          qrcode.Renderer
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.handler"),
		customerSvc: p.CustomerSvc,
		paymentSvc:  p.PaymentSvc,
		webhookSvc:  p.WebhookSvc,
		receipts:    p.Receipts,
		qr:          p.QR,
	}
	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Customers --------
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/tax-id/:taxId", s.GetCustomerByTaxID)
	api.GET("/customers/:id", s.GetCustomerByID)
	api.PUT("/customers/:id", s.UpdateCustomer)

	// -------- Payments --------
	api.POST("/payments", s.CreatePayment)
	api.GET("/payments", s.ListPaymentsByStatus)
	api.GET("/payments/order/:orderId", s.GetPaymentByOrderID)
	api.GET("/payments/customer/:customerId", s.ListPaymentsByCustomer)
	api.POST("/payments/external/:externalId/confirm", s.ConfirmPayment)
	api.POST("/payments/external/:externalId/reject", s.RejectPayment)
	api.GET("/payments/:id", s.GetPaymentByID)
	api.GET("/payments/:id/status", s.GetProviderStatus)
	api.PUT("/payments/:id/status", s.SetPaymentStatus)
	api.POST("/payments/:id/instrument", s.AttachPaymentInstrument)
	api.POST("/payments/:id/cancel", s.CancelPayment)
	api.GET("/payments/:id/qrcode.png", s.GetPaymentQRCode)
	api.GET("/payments/:id/receipt.pdf", s.GetPaymentReceipt)

	// -------- Webhooks --------
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)
	api.GET("/webhooks/unprocessed", s.ListUnprocessedWebhooks)
}
