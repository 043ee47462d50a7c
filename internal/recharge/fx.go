package recharge

import (
	"github.com/smallbiznis/credits/internal/recharge/domain"
	"github.com/smallbiznis/credits/internal/recharge/repository"
	"github.com/smallbiznis/credits/internal/recharge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recharge.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(
			service.NewService,
			fx.As(new(domain.Service)),
			fx.As(new(domain.Enqueuer)),
		),
	),
)
