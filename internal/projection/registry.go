package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"iamcore/pkg/eventstore"
)

// Registry owns every running projection handler in the process and
// exposes operational gauges plus a position-barrier wait primitive so
// callers can achieve read-after-write consistency without the
// eventstore itself knowing about projections (spec §5).
type Registry struct {
	es eventstore.EventStore

	mu       sync.RWMutex
	handlers map[string]*Handler

	lagGauge    *prometheus.GaugeVec
	failedGauge *prometheus.GaugeVec
}

// NewRegistry constructs a Registry. Pass a prometheus.Registerer (or nil
// to use the default registry) so gauges surface on the process's /metrics
// endpoint.
func NewRegistry(es eventstore.EventStore, reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{
		es:       es,
		handlers: make(map[string]*Handler),
		lagGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iamcore",
			Subsystem: "projection",
			Name:      "lag_events",
			Help:      "Number of log positions a projection trails behind the event log head.",
		}, []string{"projection", "instance_id"}),
		failedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iamcore",
			Subsystem: "projection",
			Name:      "failed_events",
			Help:      "Number of quarantined events pending operator retry.",
		}, []string{"projection", "instance_id"}),
	}
	reg.MustRegister(r.lagGauge, r.failedGauge)
	return r
}

// Register adds a handler under its configured name. Registering a
// duplicate name replaces the previous handler without stopping it;
// callers are expected to Stop before re-registering.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.cfg.Name] = h
}

// Handler looks up a registered handler by name.
func (r *Registry) Handler(name string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// StartAll starts every registered handler.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, h := range r.handlers {
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("registry: start %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops every registered handler and waits for each to drain.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		h.Stop()
	}
}

// WaitForProjection blocks until the named projection's durable position
// is at or past target, or ctx is done. Callers use this to get
// read-after-write consistency after a command without the command layer
// or eventstore depending on projections directly (spec §5).
func (r *Registry) WaitForProjection(ctx context.Context, name string, target eventstore.Position) error {
	h, ok := r.Handler(name)
	if !ok {
		return fmt.Errorf("registry: unknown projection %q", name)
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !h.Position().Less(target) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("registry: wait for projection %q: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RetryFailedEvent delegates to the named handler's quarantine retry.
func (r *Registry) RetryFailedEvent(ctx context.Context, name string, position int64, inPositionOrder int32) error {
	h, ok := r.Handler(name)
	if !ok {
		return fmt.Errorf("registry: unknown projection %q", name)
	}
	return h.RetryFailedEvent(ctx, position, inPositionOrder)
}

// RefreshMetrics recomputes the lag and failed-event gauges for every
// registered handler. Intended to be called on a ticker (e.g. by a
// robfig/cron job) rather than per-iteration.
func (r *Registry) RefreshMetrics(ctx context.Context, instanceID string) error {
	headPos, err := r.es.MaxPosition(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("registry: refresh metrics: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, h := range r.handlers {
		lag := headPos.Position - h.Position().Position
		if lag < 0 {
			lag = 0
		}
		r.lagGauge.WithLabelValues(name, instanceID).Set(float64(lag))

		count, err := r.failedEventCount(ctx, name, instanceID)
		if err != nil {
			return err
		}
		r.failedGauge.WithLabelValues(name, instanceID).Set(float64(count))
	}
	return nil
}

func (r *Registry) failedEventCount(ctx context.Context, name, instanceID string) (int64, error) {
	h, ok := r.handlers[name]
	if !ok {
		return 0, nil
	}
	var count int64
	row := h.store.QueryRow(ctx, `
		SELECT COUNT(*) FROM projection_failed_events
		WHERE projection_name = $1 AND instance_id = $2
	`, name, instanceID)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
