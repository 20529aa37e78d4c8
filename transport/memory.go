package transport

import (
	"context"
	"sync"

	"github.com/datamesh-network/datamesh/peer"
)

// MemoryDHT is an in-process DHT used for local development and tests. It
// treats every joined address as reachable and stores values in a plain map.
// It is not a network transport; production deployments wire a real
// Kademlia implementation behind the DHT interface instead.
type MemoryDHT struct {
	mu     sync.RWMutex
	values map[string][]byte
	routes map[peer.Address]string
	closed bool
}

// NewMemoryDHT creates an empty in-process DHT.
func NewMemoryDHT() *MemoryDHT {
	return &MemoryDHT{
		values: make(map[string][]byte),
		routes: make(map[peer.Address]string),
	}
}

// Join records the given addresses in the routing table.
func (m *MemoryDHT) Join(ctx context.Context, addrs []peer.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range addrs {
		if _, ok := m.routes[addr]; !ok {
			m.routes[addr] = ""
		}
	}
	return nil
}

// Ping succeeds for any address once the context is still live.
func (m *MemoryDHT) Ping(ctx context.Context, addr peer.Address) error {
	return ctx.Err()
}

// Get returns the value stored under key, if any.
func (m *MemoryDHT) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores value under key, overwriting any previous value.
func (m *MemoryDHT) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = stored
	return nil
}

// RoutingTable returns the joined addresses.
func (m *MemoryDHT) RoutingTable() []RouteEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]RouteEntry, 0, len(m.routes))
	for addr, id := range m.routes {
		entries = append(entries, RouteEntry{Addr: addr, NodeID: id})
	}
	return entries
}

// SetNodeID associates a node identifier with a joined address. Real
// transports learn this from the wire; tests and local setups inject it.
func (m *MemoryDHT) SetNodeID(addr peer.Address, nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[addr] = nodeID
}

// Close marks the transport as released.
func (m *MemoryDHT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
