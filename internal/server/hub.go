// Package server coordinates client registration, event fan-out, and
// connection cleanup for the chat hub via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Tyrowin/chathub/internal/metrics"
	"github.com/Tyrowin/chathub/internal/tracing"
)

// Hub owns the Registry and fans serialized events out to registered clients.
// seq serializes each registry mutation with the broadcasts it triggers, so
// every recipient sees client-list snapshots in mutation order.
type Hub struct {
	registry *Registry
	seq      sync.Mutex
	cfg      *Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	ctx      context.Context
	cancel   context.CancelFunc

	// mu orders wg.Add in Attach before wg.Wait in Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a Hub with an empty Registry. m may be nil.
func NewHub(cfg *Config, log *zap.Logger, m *metrics.Metrics) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: NewRegistry(),
		cfg:      cfg,
		log:      log,
		metrics:  m,
		tracer:   tracing.Tracer(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the hub's registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Broadcast delivers one event to every open registered client except
// exclude and returns the number of recipients it was queued for.
func (h *Hub) Broadcast(ctx context.Context, eventType string, payload any, exclude *Client) int {
	h.seq.Lock()
	defer h.seq.Unlock()
	return h.broadcastLocked(ctx, eventType, payload, exclude)
}

func (h *Hub) broadcastLocked(ctx context.Context, eventType string, payload any, exclude *Client) int {
	_, span := h.tracer.Start(ctx, "hub.broadcast",
		trace.WithAttributes(attribute.String("chathub.event_type", eventType)))
	defer span.End()

	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		span.RecordError(err)
		return 0
	}

	clients := h.registry.Clients()
	targetCount := calculateTargetCount(clients, exclude)

	delivered, dropped := h.broadcastToClients(clients, frame, exclude)

	h.metrics.IncBroadcast(eventType)
	h.metrics.AddDelivered(delivered)
	h.metrics.AddDropped(dropped)
	span.SetAttributes(
		attribute.Int("chathub.recipients", targetCount),
		attribute.Int("chathub.dropped", dropped),
	)
	h.log.Debug("broadcast",
		zap.String("type", eventType),
		zap.Int("targets", targetCount),
		zap.Int("dropped", dropped))
	return delivered
}

// calculateTargetCount determines how many clients the broadcast is meant for
func calculateTargetCount(clients []*Client, exclude *Client) int {
	targetCount := len(clients)
	if exclude == nil {
		return targetCount
	}
	for _, c := range clients {
		if c == exclude {
			return targetCount - 1
		}
	}
	return targetCount
}

// broadcastToClients queues frame for every client except exclude. A closed
// or backed-up recipient is skipped and does not affect the others.
func (h *Hub) broadcastToClients(clients []*Client, frame []byte, exclude *Client) (delivered, dropped int) {
	for _, client := range clients {
		if exclude != nil && client == exclude {
			continue
		}
		if client.enqueue(frame) {
			delivered++
			continue
		}
		dropped++
		client.log.Warn("skipping recipient: send queue closed or full")
	}
	return delivered, dropped
}

// Unicast delivers one event to c only.
func (h *Hub) Unicast(c *Client, eventType string, payload any) bool {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return false
	}
	if !c.enqueue(frame) {
		c.log.Warn("unicast dropped", zap.String("type", eventType))
		h.metrics.AddDropped(1)
		return false
	}
	h.metrics.AddDelivered(1)
	return true
}

// Join registers c, sends it init, announces it to everyone else and
// publishes the new client list. It fails with ErrDuplicateID when the id is
// taken, in which case nothing is sent.
func (h *Hub) Join(ctx context.Context, c *Client) error {
	h.seq.Lock()
	defer h.seq.Unlock()

	snap, err := h.registry.Add(c)
	if err != nil {
		return err
	}
	h.metrics.SetOnline(len(snap))

	nickname := c.Nickname()
	h.Unicast(c, EventInit, IdentityPayload{ID: c.id, Nickname: nickname})
	h.broadcastLocked(ctx, EventJoin, PresencePayload{ID: c.id, Msg: joinNotice(nickname)}, c)
	h.broadcastLocked(ctx, EventUpdateClientList, snap, nil)
	return nil
}

// Rename changes c's nickname and publishes the new client list. It returns
// false, sending nothing, if the nickname is empty or c is not registered.
func (h *Hub) Rename(ctx context.Context, c *Client, nickname string) bool {
	h.seq.Lock()
	defer h.seq.Unlock()

	snap, err := h.registry.Rename(c.id, nickname)
	if err != nil {
		return false
	}
	h.broadcastLocked(ctx, EventUpdateClientList, snap, nil)
	return true
}

// Leave removes c and tells the remaining clients. Calling it for a client
// that is no longer registered does nothing.
func (h *Hub) Leave(ctx context.Context, c *Client) bool {
	h.seq.Lock()
	defer h.seq.Unlock()

	snap, removed := h.registry.Remove(c.id)
	if !removed {
		return false
	}
	h.metrics.SetOnline(len(snap))

	h.broadcastLocked(ctx, EventLeave, PresencePayload{ID: c.id, Msg: leaveNotice(c.Nickname())}, nil)
	h.broadcastLocked(ctx, EventUpdateClientList, snap, nil)
	return true
}

// Attach starts the writer and session goroutines for an accepted client.
// After Shutdown it refuses the client and closes its transport.
func (h *Hub) Attach(c *Client) error {
	if c == nil {
		return ErrNilClient
	}
	if c.conn == nil {
		return ErrNoTransport
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		c.terminate()
		return ErrHubClosed
	}
	h.wg.Add(2)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		newSession(h, c).run(h.ctx)
	}()
	return nil
}

// shutdownClients drops every registered transport; their sessions then
// run the normal close path.
func (h *Hub) shutdownClients() int {
	clients := h.registry.Clients()
	for _, client := range clients {
		client.terminate()
	}
	return len(clients)
}

// Shutdown stops accepting clients, closes all active connections and waits
// for their goroutines, or until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	closed := h.shutdownClients()
	h.log.Info("closed client connections", zap.Int("count", closed))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
