package ordercreated

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qrpay/internal/config"
	obsmetrics "github.com/smallbiznis/qrpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ordercreated",
	fx.Provide(newHandler),
	fx.Provide(newConsumer),
	fx.Invoke(registerConsumer),
)

type handlerParams struct {
	fx.In

	Payments   paymentdomain.Service
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func newHandler(p handlerParams) *Handler {
	return NewHandler(p.Payments, p.Log, p.ObsMetrics)
}

type consumerParams struct {
	fx.In

	Config  config.Config
	Redis   *redis.Client `optional:"true"`
	Handler *Handler
	Log     *zap.Logger
}

// newConsumer returns nil when the listener is disabled or Redis is off.
func newConsumer(p consumerParams) *Consumer {
	if !p.Config.Orders.Enabled || p.Redis == nil {
		p.Log.Named("ordercreated").Info("order listener disabled")
		return nil
	}
	return NewConsumer(p.Redis, p.Handler, p.Config.Orders, p.Log)
}

func registerConsumer(lc fx.Lifecycle, c *Consumer) {
	if c == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return c.Start(ctx)
		},
		OnStop: c.Stop,
	})
}
