package network

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/peer"
	"github.com/datamesh-network/datamesh/transport"
)

// Bootstrapper joins the DHT network from configured seed addresses and
// previously known healthy peers.
type Bootstrapper struct {
	registry *peer.Registry
	dht      transport.DHT
	seeds    []string
	log      *logrus.Logger
}

// NewBootstrapper creates a bootstrapper over the shared registry and transport.
func NewBootstrapper(registry *peer.Registry, dht transport.DHT, seeds []string, log *logrus.Logger) *Bootstrapper {
	return &Bootstrapper{
		registry: registry,
		dht:      dht,
		seeds:    seeds,
		log:      log,
	}
}

// Bootstrap attempts to join the network. Failure is never fatal: with no
// candidates the node simply runs isolated until the re-bootstrap loop
// tries again, and a transport failure leaves the registry unchanged.
func (b *Bootstrapper) Bootstrap(ctx context.Context) {
	candidates := b.candidates()
	if len(candidates) == 0 {
		b.log.Warn("No bootstrap candidates available")
		return
	}

	b.log.WithField("nodes", len(candidates)).Info("Bootstrapping to network")

	jctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	if err := b.dht.Join(jctx, candidates); err != nil {
		b.log.WithError(err).Error("Bootstrap failed")
		return
	}

	b.RefreshFromRoutingTable()
	b.log.WithField("known_peers", b.registry.Len()).Info("Bootstrap complete")
}

// candidates merges parsed seed addresses with currently healthy known
// peers, deduplicated. Malformed seeds are dropped with a warning; the seed
// list is passive input and must tolerate noise.
func (b *Bootstrapper) candidates() []peer.Address {
	seen := make(map[peer.Address]struct{})
	var out []peer.Address

	add := func(addr peer.Address) {
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, raw := range b.seeds {
		addr, err := peer.ParseAddress(raw)
		if err != nil {
			b.log.WithField("peer", raw).WithError(err).Warn("Invalid bootstrap peer address")
			continue
		}
		add(addr)
	}

	for _, info := range b.registry.HealthyPeers(time.Now()) {
		add(info.Addr)
	}

	return out
}

// RefreshFromRoutingTable folds the transport's current routing table into
// the registry: unknown peers are added, known ones get their last-seen
// time and node id refreshed. A missing node id never clears a stored one.
func (b *Bootstrapper) RefreshFromRoutingTable() {
	for _, entry := range b.dht.RoutingTable() {
		b.registry.Touch(entry.Addr, entry.NodeID)
	}
}

// ActivePeerCount reports the size of the transport's routing table;
// zero until a join has succeeded.
func (b *Bootstrapper) ActivePeerCount() int {
	return len(b.dht.RoutingTable())
}
