package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"incidentrelay/internal/metrics"
	"incidentrelay/pkg/logging"
)

// ErrTransportClosed is returned by Conn.Send when the connection is gone.
var ErrTransportClosed = errors.New("transport closed")

// Conn is one live real-time connection.
type Conn interface {
	// ID uniquely identifies the connection within the hub.
	ID() string
	// Open reports whether the transport can still accept messages.
	Open() bool
	// Send queues a message for delivery. It must not block on the network.
	Send(msg []byte) error
	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// Result reports the outcome of one broadcast.
type Result struct {
	Delivered int
	Pruned    int
}

// Hub owns the connection set.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn

	// deliverMu orders broadcasts against the snapshot replay done by Register,
	// so a new connection never receives an older snapshot after a newer one.
	// Sends only enqueue, so it is never held across network I/O.
	deliverMu sync.Mutex

	// lastSnapshot is the most recent update-incidents payload.
	lastSnapshot []byte
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// Register adds a connection and sends it the latest snapshot, if any.
func (h *Hub) Register(c Conn) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	h.conns[c.ID()] = c
	n := len(h.conns)
	h.mu.Unlock()

	metrics.Connections.Set(float64(n))
	logging.Debug("Hub", "Registered connection %s (%d live)", c.ID(), n)

	if h.lastSnapshot != nil {
		if err := c.Send(h.lastSnapshot); err != nil {
			h.prune(c)
		}
	}
}

// Unregister removes a connection. Unknown connections are ignored.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	current, ok := h.conns[c.ID()]
	if ok && current == c {
		delete(h.conns, c.ID())
	}
	n := len(h.conns)
	h.mu.Unlock()

	if ok {
		metrics.Connections.Set(float64(n))
		logging.Debug("Hub", "Unregistered connection %s (%d live)", c.ID(), n)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast delivers ev to every open connection. Connections that are closed
// at send time are pruned. Delivery order across connections is unspecified.
func (h *Hub) Broadcast(ev Event) Result {
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Error("Hub", err, "Failed to encode %s event", ev.Type)
		return Result{}
	}

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	if ev.Type == EventUpdateIncidents {
		h.lastSnapshot = payload
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var res Result
	for _, c := range targets {
		if !c.Open() {
			h.prune(c)
			res.Pruned++
			continue
		}
		if err := c.Send(payload); err != nil {
			if errors.Is(err, ErrTransportClosed) {
				h.prune(c)
				res.Pruned++
				continue
			}
			logging.Warn("Hub", "Failed to queue %s event for connection %s: %v", ev.Type, c.ID(), err)
			continue
		}
		res.Delivered++
	}

	metrics.BroadcastsTotal.WithLabelValues(ev.Type).Inc()
	if res.Pruned > 0 {
		metrics.PrunedTotal.Add(float64(res.Pruned))
	}
	logging.Debug("Hub", "Broadcast %s to %d connections (%d pruned)", ev.Type, res.Delivered, res.Pruned)
	return res
}

func (h *Hub) prune(c Conn) {
	h.Unregister(c)
	_ = c.Close()
}

// CloseAll closes and removes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Conn)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	metrics.Connections.Set(0)
}
