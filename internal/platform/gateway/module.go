package gateway

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/transitops/fareflow/pkg/config"
)

// New selects the provider client: the HTTP gateway when a base URL is
// configured outside dev, otherwise the in-process mock.
func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) PaymentGateway {
	if cfg.Env != cfgpkg.EnvDev && cfg.Gateway.BaseURL != "" {
		log.Infow("using HTTP payment gateway", "base_url", cfg.Gateway.BaseURL, "timeout", cfg.Gateway.Timeout())
		return newHTTPGateway(cfg.Gateway, log)
	}
	log.Infow("using mock payment gateway")
	return newMockGateway(log)
}

var Module = fx.Options(
	fx.Provide(New),
)
