package payment

import (
	"github.com/smallbiznis/qrpay/internal/payment/gateway"
	"github.com/smallbiznis/qrpay/internal/payment/gateway/mercadopago"
	"github.com/smallbiznis/qrpay/internal/payment/gateway/simulated"
	"github.com/smallbiznis/qrpay/internal/payment/repository"
	"github.com/smallbiznis/qrpay/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *gateway.Registry {
		return gateway.NewRegistry(
			simulated.NewFactory(),
			mercadopago.NewFactory(nil),
		)
	}),
	fx.Provide(gateway.Select),
	fx.Provide(gateway.AsGateway),
	fx.Provide(service.New),
)
