package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ledgerEntries     metric.Int64Counter
	debitRejections   metric.Int64Counter
	appendConflicts   metric.Int64Counter
	rechargeDecisions metric.Int64Counter
	rechargeOutcomes  metric.Int64Counter
	paymentEvents     metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "credits"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.ledgerEntries, err = meter.Int64Counter("credits_ledger_entries_total",
		metric.WithDescription("Committed ledger entries by direction and source type.")); err != nil {
		return nil, err
	}
	if m.debitRejections, err = meter.Int64Counter("credits_debit_rejections_total",
		metric.WithDescription("Debits refused by the balance policy.")); err != nil {
		return nil, err
	}
	if m.appendConflicts, err = meter.Int64Counter("credits_append_conflicts_total",
		metric.WithDescription("Wallet version conflicts retried by append.")); err != nil {
		return nil, err
	}
	if m.rechargeDecisions, err = meter.Int64Counter("credits_recharge_decisions_total",
		metric.WithDescription("Auto-recharge trigger decisions by reason.")); err != nil {
		return nil, err
	}
	if m.rechargeOutcomes, err = meter.Int64Counter("credits_recharge_outcomes_total",
		metric.WithDescription("Recharge attempt state transitions.")); err != nil {
		return nil, err
	}
	if m.paymentEvents, err = meter.Int64Counter("credits_payment_events_total",
		metric.WithDescription("Payment webhook events by provider, type and outcome.")); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("credits_rate_limit_denied_total",
		metric.WithDescription("Requests denied by the debit rate limiter.")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordLedgerEntry counts committed ledger entries.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, direction, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("direction", strings.TrimSpace(direction)),
		attribute.String("source_type", strings.TrimSpace(sourceType)),
	)
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDebitRejected counts debits refused by the enforcement policy.
func (m *Metrics) RecordDebitRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.debitRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAppendConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.appendConflicts.Add(ctx, 1)
}

// RecordRechargeDecision counts auto-recharge evaluations by outcome reason.
func (m *Metrics) RecordRechargeDecision(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.rechargeDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRechargeOutcome counts recharge attempt state transitions.
func (m *Metrics) RecordRechargeOutcome(ctx context.Context, state string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("state", strings.TrimSpace(state)))
	m.rechargeOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent counts webhook events by handling outcome.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Tenant ids are deliberately absent: they would explode series cardinality.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"direction":   {},
	"source_type": {},
	"reason":      {},
	"state":       {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"endpoint":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
