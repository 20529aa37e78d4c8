// Package transport defines the contract this node expects from its
// distributed hash table. The DHT itself (Kademlia routing, k-buckets, the
// RPC wire format) is an external collaborator; the peer lifecycle layer
// only consumes the operations below.
package transport

import (
	"context"

	"github.com/datamesh-network/datamesh/peer"
)

// RouteEntry is one peer as seen by the DHT's routing table.
type RouteEntry struct {
	Addr   peer.Address
	NodeID string
}

// DHT is the key-value and membership surface of the underlying
// Kademlia-style transport. All blocking operations honor their context;
// callers attach the timeouts.
type DHT interface {
	// Join bootstraps into the network via the given addresses.
	Join(ctx context.Context, addrs []peer.Address) error

	// Ping performs a lightweight liveness probe against a single peer.
	Ping(ctx context.Context, addr peer.Address) error

	// Get looks up a key. The second return value reports whether the key
	// was present; absence is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under a key.
	Set(ctx context.Context, key string, value []byte) error

	// RoutingTable returns a snapshot of the peers the DHT currently routes
	// through. Empty before Join has succeeded.
	RoutingTable() []RouteEntry

	// Close releases the transport.
	Close() error
}
