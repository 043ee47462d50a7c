package wallet

import (
	"github.com/smallbiznis/credits/internal/wallet/notify"
	"github.com/smallbiznis/credits/internal/wallet/repository"
	"github.com/smallbiznis/credits/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(notify.NewLogNotifier),
	fx.Provide(service.NewService),
)
