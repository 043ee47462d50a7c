package observability

import (
	"time"

	"github.com/smallbiznis/credits/internal/observability/logger"
	"github.com/smallbiznis/credits/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		metrics.NewProvider,
		metrics.New,
	),
)

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Metrics metrics.Config
}

// splitConfig hands each provider its own view of Config.
func splitConfig(cfg Config) componentConfigs {
	logCfg := logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
	if !cfg.Debug() {
		// debit traffic is hot; sample repeated lines per second
		logCfg.SamplingInitial = 100
		logCfg.SamplingThereafter = 50
		logCfg.SamplingWindow = time.Second
	}

	return componentConfigs{
		Logger: logCfg,
		Metrics: metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}
