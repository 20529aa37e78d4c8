package network

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/peer"
	"github.com/datamesh-network/datamesh/transport"
)

// HealthMonitor probes known peers for liveness and latency and prunes the
// registry afterwards.
type HealthMonitor struct {
	registry *peer.Registry
	dht      transport.DHT
	log      *logrus.Logger
}

// NewHealthMonitor creates a monitor over the shared registry and transport.
func NewHealthMonitor(registry *peer.Registry, dht transport.DHT, log *logrus.Logger) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		dht:      dht,
		log:      log,
	}
}

// CheckAll probes every known peer concurrently, each with its own timeout.
// Individual probe failures never abort the batch; after all probes finish
// the registry is pruned. Probing is best-effort: a peer that fails the
// probe may still serve data through the DHT, which the grace period in the
// health rule compensates for.
func (m *HealthMonitor) CheckAll(ctx context.Context) {
	// Pick up anything the routing table has learned since the last pass.
	for _, entry := range m.dht.RoutingTable() {
		m.registry.Touch(entry.Addr, entry.NodeID)
	}

	peers := m.registry.Snapshot()

	var wg sync.WaitGroup
	for _, info := range peers {
		wg.Add(1)
		go func(addr peer.Address) {
			defer wg.Done()
			m.probe(ctx, addr)
		}(info.Addr)
	}
	wg.Wait()

	if removed := m.registry.Prune(); removed > 0 {
		m.log.WithField("removed", removed).Info("Pruned dead peers")
	}
}

func (m *HealthMonitor) probe(ctx context.Context, addr peer.Address) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	if err := m.dht.Ping(pctx, addr); err != nil {
		m.registry.RecordFailure(addr)
		m.log.WithField("peer", addr.String()).WithError(err).Debug("Peer probe failed")
		return
	}

	latency := time.Since(start)
	m.registry.RecordSuccess(addr, latency)
	m.log.WithFields(logrus.Fields{
		"peer":       addr.String(),
		"latency_ms": latency.Milliseconds(),
	}).Debug("Peer probe succeeded")
}
