package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/infra/config"
)

type stubCache struct {
	names []string
	ok    bool
	err   error
}

func (c stubCache) GetPermissions(context.Context, string, string) (port.CachedPermissions, error) {
	return port.CachedPermissions{Names: c.names, Hit: c.ok}, c.err
}

func (stubCache) SetPermissions(context.Context, int64, string, string, []string) error { return nil }

func (stubCache) Invalidate(context.Context) error { return nil }

type stubGenerator struct {
	used int
	err  error
}

func (stubGenerator) MaxAttempts() int { return 100 }

func (g stubGenerator) GenerateCounted(context.Context, int) (string, int, error) {
	if g.err != nil {
		return "", g.used, g.err
	}
	return "u12345678", g.used, nil
}

func (stubGenerator) Exhausted(attempts int) error {
	return &domain.GenerationExhaustedError{Attempts: attempts}
}

func TestInstrumentPermissionCacheCountsResults(t *testing.T) {
	metrics := NewDomainMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	_, _ = InstrumentPermissionCache(stubCache{ok: true}, metrics).GetPermissions(ctx, "1", "web")
	_, _ = InstrumentPermissionCache(stubCache{ok: true}, metrics).GetPermissions(ctx, "1", "web")
	_, _ = InstrumentPermissionCache(stubCache{}, metrics).GetPermissions(ctx, "1", "web")
	_, _ = InstrumentPermissionCache(stubCache{err: errors.New("down")}, metrics).GetPermissions(ctx, "1", "web")

	if got := testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestInstrumentPermissionCacheNilPassthrough(t *testing.T) {
	if got := InstrumentPermissionCache(nil, NewDomainMetrics(prometheus.NewRegistry())); got != nil {
		t.Fatalf("expected nil cache to stay nil, got %T", got)
	}
}

func TestInstrumentUsernameGeneratorCountsExhaustion(t *testing.T) {
	metrics := NewDomainMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	ok := InstrumentUsernameGenerator(stubGenerator{used: 2}, metrics)
	if _, _, err := ok.GenerateCounted(ctx, 0); err != nil {
		t.Fatalf("GenerateCounted returned error: %v", err)
	}

	exhausted := InstrumentUsernameGenerator(stubGenerator{used: 100, err: &domain.GenerationExhaustedError{Attempts: 100}}, metrics)
	if _, _, err := exhausted.GenerateCounted(ctx, 0); !errors.Is(err, domain.ErrGenerationExhausted) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.usernameExhausted); got != 1 {
		t.Fatalf("expected 1 exhaustion, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.usernameAttempts); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestNewTracerProviderWithoutEndpoint(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), config.TelemetrySettings{ServiceName: "iam-test", SamplingRate: 1}, nil)
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context")
	}
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
