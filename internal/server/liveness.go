package server

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Monitor probes every registered client on a fixed period. A client that
// did not answer the previous probe is terminated; its session then runs the
// normal leave path.
type Monitor struct {
	hub          *Hub
	interval     time.Duration
	writeTimeout time.Duration
	log          *zap.Logger
}

// NewMonitor creates a Monitor for h using the hub's ping settings.
func NewMonitor(h *Hub) *Monitor {
	return &Monitor{
		hub:          h,
		interval:     h.cfg.PingInterval,
		writeTimeout: h.cfg.PingWriteTimeout,
		log:          h.log.Named("liveness"),
	}
}

// Run sweeps on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("liveness monitor started", zap.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep performs one probe pass and reports how many clients were pinged
// and how many were terminated.
func (m *Monitor) Sweep(ctx context.Context) (probed, terminated int) {
	_, span := m.hub.tracer.Start(ctx, "liveness.sweep")
	defer span.End()

	for _, c := range m.hub.registry.Clients() {
		if !c.alive.CompareAndSwap(true, false) {
			c.log.Info("client missed liveness probe, terminating")
			m.hub.metrics.IncLivenessTermination()
			c.terminate()
			terminated++
			continue
		}

		if err := c.ping(m.writeTimeout); err != nil {
			c.log.Info("liveness probe failed, terminating", zap.Error(err))
			m.hub.metrics.IncLivenessTermination()
			c.terminate()
			terminated++
			continue
		}
		probed++
	}

	span.SetAttributes(
		attribute.Int("chathub.probed", probed),
		attribute.Int("chathub.terminated", terminated),
	)
	return probed, terminated
}
