package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
)

// DomainMetrics holds the service-level collectors that are not tied to a transport.
type DomainMetrics struct {
	cacheLookups      *prometheus.CounterVec
	usernameAttempts  prometheus.Histogram
	usernameExhausted prometheus.Counter
}

// NewDomainMetrics registers the collectors on reg.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "permission_cache_lookups_total",
			Help:      "Permission cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		usernameAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iam",
			Name:      "username_generation_attempts",
			Help:      "Candidates drawn per generated username",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),
		usernameExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "username_generation_exhausted_total",
			Help:      "Username generations that ran out of attempts",
		}),
	}
	reg.MustRegister(m.cacheLookups, m.usernameAttempts, m.usernameExhausted)
	return m
}

type instrumentedCache struct {
	port.PermissionCache
	metrics *DomainMetrics
}

// InstrumentPermissionCache counts hits and misses of cache.
func InstrumentPermissionCache(cache port.PermissionCache, metrics *DomainMetrics) port.PermissionCache {
	if cache == nil || metrics == nil {
		return cache
	}
	return &instrumentedCache{PermissionCache: cache, metrics: metrics}
}

func (c *instrumentedCache) GetPermissions(ctx context.Context, userID string, guard string) (port.CachedPermissions, error) {
	cached, err := c.PermissionCache.GetPermissions(ctx, userID, guard)
	switch {
	case err != nil:
		c.metrics.cacheLookups.WithLabelValues("error").Inc()
	case cached.Hit:
		c.metrics.cacheLookups.WithLabelValues("hit").Inc()
	default:
		c.metrics.cacheLookups.WithLabelValues("miss").Inc()
	}
	return cached, err
}

// UsernameGenerator mirrors the generator contract consumed by the user service.
type UsernameGenerator interface {
	MaxAttempts() int
	GenerateCounted(ctx context.Context, budget int) (string, int, error)
	Exhausted(attempts int) error
}

type instrumentedGenerator struct {
	UsernameGenerator
	metrics *DomainMetrics
}

// InstrumentUsernameGenerator records attempts per generation and exhaustion.
func InstrumentUsernameGenerator(generator UsernameGenerator, metrics *DomainMetrics) UsernameGenerator {
	if generator == nil || metrics == nil {
		return generator
	}
	return &instrumentedGenerator{UsernameGenerator: generator, metrics: metrics}
}

func (g *instrumentedGenerator) GenerateCounted(ctx context.Context, budget int) (string, int, error) {
	value, used, err := g.UsernameGenerator.GenerateCounted(ctx, budget)
	g.metrics.usernameAttempts.Observe(float64(used))
	if errors.Is(err, domain.ErrGenerationExhausted) {
		g.metrics.usernameExhausted.Inc()
	}
	return value, used, err
}
