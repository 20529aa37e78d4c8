package network

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/peer"
	"github.com/datamesh-network/datamesh/transport"
)

// exchangeKeyPrefix namespaces peer-exchange envelopes in the DHT keyspace.
const exchangeKeyPrefix = "peers:"

// exchangeEntry is one peer in a published peer list.
type exchangeEntry struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	NodeID string `json:"node_id,omitempty"`
}

// Exchanger gossips healthy-peer lists through the DHT. It is the only
// mechanism for learning about peers beyond the seed list and the routing
// table, so merging must never insert duplicates or clobber verified state.
type Exchanger struct {
	registry *peer.Registry
	dht      transport.DHT
	nodeID   string
	log      *logrus.Logger
}

// NewExchanger creates an exchanger publishing under this node's identity.
func NewExchanger(registry *peer.Registry, dht transport.DHT, nodeID string, log *logrus.Logger) *Exchanger {
	return &Exchanger{
		registry: registry,
		dht:      dht,
		nodeID:   nodeID,
		log:      log,
	}
}

// Exchange publishes this node's healthy-peer list, then opportunistically
// fetches the lists of known peers. Every failure along the way is logged
// and swallowed; exchange is best-effort by design.
func (e *Exchanger) Exchange(ctx context.Context) {
	shared := e.shareableList()
	if len(shared) == 0 {
		e.log.Debug("No healthy peers to share, skipping exchange")
		return
	}

	payload, err := json.Marshal(shared)
	if err != nil {
		e.log.WithError(err).Debug("Failed to encode peer list")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	err = e.dht.Set(sctx, exchangeKeyPrefix+e.nodeID, payload)
	cancel()
	if err != nil {
		e.log.WithError(err).Debug("Peer exchange publish failed")
		return
	}

	e.fetchPeerLists(ctx)
}

// shareableList returns up to maxSharedPeers currently healthy peers.
func (e *Exchanger) shareableList() []exchangeEntry {
	healthy := e.registry.HealthyPeers(time.Now())
	if len(healthy) > maxSharedPeers {
		healthy = healthy[:maxSharedPeers]
	}

	entries := make([]exchangeEntry, 0, len(healthy))
	for _, info := range healthy {
		entries = append(entries, exchangeEntry{
			Host:   info.Addr.Host,
			Port:   info.Addr.Port,
			NodeID: info.NodeID,
		})
	}
	return entries
}

// fetchPeerLists pulls the published lists of up to maxExchangeFetches known
// peers that have a node id.
func (e *Exchanger) fetchPeerLists(ctx context.Context) {
	fetched := 0
	for _, info := range e.registry.Snapshot() {
		if fetched >= maxExchangeFetches {
			break
		}
		if info.NodeID == "" {
			continue
		}
		fetched++

		gctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
		data, found, err := e.dht.Get(gctx, exchangeKeyPrefix+info.NodeID)
		cancel()
		if err != nil {
			e.log.WithField("peer", info.Addr.String()).WithError(err).Debug("Failed to fetch peer list")
			continue
		}
		if !found {
			continue
		}

		var entries []exchangeEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			e.log.WithField("peer", info.Addr.String()).WithError(err).Debug("Malformed peer list")
			continue
		}
		e.merge(entries)
	}
}

// merge folds received entries into the registry. Entries with a missing or
// invalid host or port are skipped silently; gossip is untrusted input.
// Known peers are never modified, so verified state cannot regress.
func (e *Exchanger) merge(entries []exchangeEntry) {
	for _, ent := range entries {
		if ent.Host == "" || ent.Port < 1 || ent.Port > 65535 {
			continue
		}
		addr := peer.Address{Host: ent.Host, Port: ent.Port}
		if e.registry.MergeExchanged(addr, ent.NodeID) {
			e.log.WithField("peer", addr.String()).Debug("Discovered new peer via exchange")
		}
	}
}
