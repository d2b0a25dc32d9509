// Package health tracks liveness of the service's dependencies.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, embedder).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ComponentStatus is a point-in-time view of one dependency.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// ServiceHealthChecker folds component checkers into one service flag.
type ServiceHealthChecker struct {
	healthy atomic.Bool
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, log: log}
}

// IsHealthy returns the cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() }

// Components reports the current state of every dependency.
func (h *ServiceHealthChecker) Components() []ComponentStatus {
	out := make([]ComponentStatus, 0, len(h.deps))
	for _, c := range h.deps {
		out = append(out, ComponentStatus{Name: c.Name(), Healthy: c.IsHealthy()})
	}
	return out
}

// Start re-evaluates dependency health every interval until ctx ends and
// logs UP/DOWN transitions.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate()
		}
	}
}

func (h *ServiceHealthChecker) evaluate() {
	var down []string
	for _, c := range h.deps {
		if !c.IsHealthy() {
			down = append(down, c.Name())
		}
	}
	cur := len(down) == 0
	prev := h.healthy.Swap(cur)
	if cur == prev {
		return
	}
	if cur {
		h.log.Info().Msg("service health: UP")
	} else {
		h.log.Error().Strs("down", down).Msg("service health: DOWN")
	}
}
