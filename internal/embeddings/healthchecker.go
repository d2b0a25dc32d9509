package embeddings

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Thianvelaz/Cognio/internal/health"
	"github.com/rs/zerolog"
)

// ProviderHealthChecker monitors an embeddings provider.
type ProviderHealthChecker struct {
	provider     Provider
	healthy      atomic.Bool
	log          zerolog.Logger
	probeTimeout time.Duration
}

func NewProviderHealthChecker(p Provider, log zerolog.Logger, probeTimeout time.Duration) *ProviderHealthChecker {
	return &ProviderHealthChecker{provider: p, log: log, probeTimeout: probeTimeout}
}

func (c *ProviderHealthChecker) Name() string    { return "embedder" }
func (c *ProviderHealthChecker) IsHealthy() bool { return c.healthy.Load() }

func (c *ProviderHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs a single probe and records the outcome.
func (c *ProviderHealthChecker) Check(ctx context.Context) {
	to := c.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	var err error
	if p, ok := c.provider.(health.HealthPinger); ok {
		err = p.HealthPing(checkCtx)
	} else {
		var vec []float32
		vec, err = c.provider.Embed(checkCtx, "health-check")
		if err == nil && len(vec) == 0 {
			err = errEmptyVector
		}
	}
	if err != nil {
		if c.healthy.Swap(false) {
			c.log.Error().Stack().Str("checker", c.Name()).Err(err).Msg("embedder health check failed")
		}
		return
	}
	c.healthy.Store(true)
}
