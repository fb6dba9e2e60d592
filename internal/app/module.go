package app

import (
	"time"

	"github.com/transitops/fareflow/internal/app/api/server"
	"github.com/transitops/fareflow/internal/app/service/history"
	"github.com/transitops/fareflow/internal/app/service/lifecycle"
	"github.com/transitops/fareflow/internal/app/service/payment"
	"github.com/transitops/fareflow/internal/app/service/statistics"
	"github.com/transitops/fareflow/internal/app/service/subscription"
	"github.com/transitops/fareflow/internal/platform/db"
	"github.com/transitops/fareflow/internal/platform/events"
	"github.com/transitops/fareflow/internal/platform/gateway"
	"github.com/transitops/fareflow/internal/repository"
	"github.com/transitops/fareflow/pkg/config"
	"github.com/transitops/fareflow/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	repository.Module,
	gateway.Module,
	events.Module,
	server.Module,
	subscription.Module,
	payment.Module,
	history.Module,
	statistics.Module,
	lifecycle.Module,
)
