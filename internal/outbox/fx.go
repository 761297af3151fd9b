package outbox

import (
	"context"

	"github.com/smallbiznis/qrpay/internal/outbox/dispatcher"
	"github.com/smallbiznis/qrpay/internal/outbox/repository"
	"github.com/smallbiznis/qrpay/internal/outbox/service"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewPublisher),
	fx.Provide(dispatcher.New),
	fx.Invoke(registerDispatcher),
)

func registerDispatcher(lc fx.Lifecycle, d *dispatcher.Dispatcher) {
	if d == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: d.Stop,
	})
}
