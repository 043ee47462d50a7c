package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/credits/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = tenantctx.WithTenantID(ctx, snowflake.ID(7))

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "7", fields["tenant_id"])
}

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestWithContextAddsTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	traceID := trace.TraceID{0x01, 0x02}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x03},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	WithContext(ctx, zap.New(core)).Info("traced")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	assert.Equal(t, traceID.String(), entries[0].ContextMap()["trace_id"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		route  string
		status int
		want   zapcore.Level
	}{
		{"/api/wallet", http.StatusOK, zapcore.InfoLevel},
		{"/api/wallet/debit", http.StatusPaymentRequired, zapcore.DebugLevel},
		{"/api/wallet/credit", http.StatusPaymentRequired, zapcore.InfoLevel},
		{"/api/wallet/debit", http.StatusTooManyRequests, zapcore.WarnLevel},
		{"/webhooks/:provider", http.StatusBadRequest, zapcore.WarnLevel},
		{"/health", http.StatusOK, zapcore.DebugLevel},
		{"/metrics", http.StatusInternalServerError, zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, levelFor(tc.route, tc.status), "%s %d", tc.route, tc.status)
	}
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{"SELECT * FROM wallets WHERE tenant_id = ?", "SELECT", "wallets"},
		{"INSERT INTO ledger_entries (id) VALUES (?)", "INSERT", "ledger_entries"},
		{"UPDATE \"auto_recharge_configs\" SET is_enabled = false", "UPDATE", "auto_recharge_configs"},
		{"  ", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestGormLoggerDemotesExpectedErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	duplicate := errors.New("UNIQUE constraint failed: ledger_entries.source_ref")

	cfg := DefaultGormLoggerConfig()
	cfg.Expected = func(err error) bool { return errors.Is(err, duplicate) }
	gl := NewGormLogger(cfg, zap.New(core))

	query := func() (string, int64) { return "INSERT INTO ledger_entries (id) VALUES (?)", 0 }
	gl.Trace(context.Background(), time.Now(), query, duplicate)
	gl.Trace(context.Background(), time.Now(), query, errors.New("connection reset"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "ledger_entries", entries[1].ContextMap()["table"])
}
