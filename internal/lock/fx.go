package lock

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/credits/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
	Clock clock.Clock   `optional:"true"`
}

func NewLocker(p Params) Locker {
	if p.Redis != nil {
		p.Log.Named("lock").Info("using redis locks")
		return NewRedisLocker(p.Redis)
	}
	p.Log.Named("lock").Info("using database lease locks")
	return NewLeaseLocker(p.DB, p.Clock)
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)
