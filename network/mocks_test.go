package network

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/peer"
	"github.com/datamesh-network/datamesh/transport"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// mockDHT implements transport.DHT for tests. Behaviors default to a simple
// in-memory store and can be overridden per test via the func fields.
type mockDHT struct {
	mu sync.Mutex

	joinFunc func(ctx context.Context, addrs []peer.Address) error
	pingFunc func(ctx context.Context, addr peer.Address) error
	getFunc  func(ctx context.Context, key string) ([]byte, bool, error)
	setFunc  func(ctx context.Context, key string, value []byte) error

	routes    []transport.RouteEntry
	values    map[string][]byte
	joinCalls [][]peer.Address
	closed    bool
}

func newMockDHT() *mockDHT {
	return &mockDHT{values: make(map[string][]byte)}
}

func (m *mockDHT) Join(ctx context.Context, addrs []peer.Address) error {
	m.mu.Lock()
	m.joinCalls = append(m.joinCalls, addrs)
	fn := m.joinFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, addrs)
	}
	return nil
}

func (m *mockDHT) Ping(ctx context.Context, addr peer.Address) error {
	m.mu.Lock()
	fn := m.pingFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, addr)
	}
	return nil
}

func (m *mockDHT) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	fn := m.getFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

func (m *mockDHT) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	fn := m.setFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, key, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockDHT) RoutingTable() []transport.RouteEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]transport.RouteEntry, len(m.routes))
	copy(out, m.routes)
	return out
}

func (m *mockDHT) setRoutes(entries ...transport.RouteEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = entries
}

func (m *mockDHT) joinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.joinCalls)
}

func (m *mockDHT) lastJoin() []peer.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.joinCalls) == 0 {
		return nil
	}
	return m.joinCalls[len(m.joinCalls)-1]
}

func routeEntry(host string, port int) transport.RouteEntry {
	return transport.RouteEntry{Addr: peer.Address{Host: host, Port: port}}
}

func (m *mockDHT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
