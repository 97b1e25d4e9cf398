// Package observability exports engine metrics. The engine itself stays
// silent; metrics are fed purely through lifecycle hooks so hosts that skip
// this package pay nothing.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aretw0/stanza/pkg/domain"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	blocksExecuted *prometheus.CounterVec
	waitsScheduled *prometheus.CounterVec
	waitsFired     *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with a registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		blocksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stanza_blocks_executed_total",
			Help: "Blocks executed, by document and block kind.",
		}, []string{"document", "kind"}),
		waitsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stanza_waits_scheduled_total",
			Help: "Wait continuations persisted to the scheduler.",
		}, []string{"document"}),
		waitsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stanza_waits_fired_total",
			Help: "Wait continuations that woke up and resumed.",
		}, []string{"document"}),
	}
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnBlockLeave: func(_ context.Context, e *domain.BlockEvent) {
			m.blocksExecuted.WithLabelValues(e.DocumentID, string(e.BlockKind)).Inc()
		},
		OnWaitScheduled: func(_ context.Context, e *domain.WaitEvent) {
			m.waitsScheduled.WithLabelValues(e.DocumentID).Inc()
		},
		OnWaitFired: func(_ context.Context, e *domain.WaitEvent) {
			m.waitsFired.WithLabelValues(e.DocumentID).Inc()
		},
	}
}

// Chain merges hook sets so metrics and host callbacks both fire.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out = merge(out, h)
	}
	return out
}

func merge(a, b domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnBlockEnter:    mergeBlock(a.OnBlockEnter, b.OnBlockEnter),
		OnBlockLeave:    mergeBlock(a.OnBlockLeave, b.OnBlockLeave),
		OnWaitScheduled: mergeWait(a.OnWaitScheduled, b.OnWaitScheduled),
		OnWaitFired:     mergeWait(a.OnWaitFired, b.OnWaitFired),
	}
}

func mergeBlock(a, b func(context.Context, *domain.BlockEvent)) func(context.Context, *domain.BlockEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.BlockEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func mergeWait(a, b func(context.Context, *domain.WaitEvent)) func(context.Context, *domain.WaitEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.WaitEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
