package autorecharge

import (
	"github.com/smallbiznis/credits/internal/autorecharge/domain"
	"github.com/smallbiznis/credits/internal/autorecharge/repository"
	"github.com/smallbiznis/credits/internal/autorecharge/service"
	"github.com/smallbiznis/credits/internal/autorecharge/trigger"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("autorecharge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(
		fx.Annotate(
			trigger.New,
			fx.As(new(domain.Trigger)),
			fx.As(new(walletdomain.DebitObserver)),
		),
	),
)
