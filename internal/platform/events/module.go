package events

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/transitops/fareflow/pkg/config"
)

// New builds the publisher. With no AMQP URL configured the noop
// publisher is used so lifecycle operations never depend on a broker.
func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) (Publisher, error) {
	if cfg.AMQP.URL == "" {
		log.Infow("event publishing disabled, using noop publisher")
		return &noopPublisher{log: log}, nil
	}
	return newRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
}

func registerClose(lc fx.Lifecycle, log *zap.SugaredLogger, pub Publisher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Infow("closing event publisher")
			return pub.Close()
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerClose),
)
