package network

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamesh-network/datamesh/peer"
	"github.com/datamesh-network/datamesh/transport"
)

func newTestRegistry(t *testing.T) *peer.Registry {
	t.Helper()
	return peer.NewRegistry(filepath.Join(t.TempDir(), "known_peers.json"), newTestLogger())
}

func TestBootstrapJoinsSeedsAndHealthyPeers(t *testing.T) {
	reg := newTestRegistry(t)
	dht := newMockDHT()

	known := peer.Address{Host: "known.example.com", Port: 8000}
	reg.RecordSuccess(known, 10*time.Millisecond)

	seeds := []string{"seed.example.com:8000", "not-an-address", "seed.example.com:8000"}
	b := NewBootstrapper(reg, dht, seeds, newTestLogger())
	b.Bootstrap(context.Background())

	require.Equal(t, 1, dht.joinCount())
	joined := dht.lastJoin()
	assert.ElementsMatch(t, []peer.Address{
		{Host: "seed.example.com", Port: 8000},
		known,
	}, joined, "invalid seeds dropped, duplicates removed, healthy peers included")
}

func TestBootstrapWithoutCandidatesSkipsJoin(t *testing.T) {
	reg := newTestRegistry(t)
	dht := newMockDHT()

	b := NewBootstrapper(reg, dht, nil, newTestLogger())
	b.Bootstrap(context.Background())

	assert.Equal(t, 0, dht.joinCount(), "no candidates means no join attempt")
}

func TestBootstrapFailureLeavesRegistryUnchanged(t *testing.T) {
	reg := newTestRegistry(t)
	dht := newMockDHT()
	dht.joinFunc = func(ctx context.Context, addrs []peer.Address) error {
		return errors.New("network unreachable")
	}
	dht.setRoutes(transport.RouteEntry{
		Addr:   peer.Address{Host: "router.example.com", Port: 8000},
		NodeID: "router",
	})

	b := NewBootstrapper(reg, dht, []string{"seed.example.com:8000"}, newTestLogger())
	b.Bootstrap(context.Background())

	assert.Equal(t, 0, reg.Len(), "failed join must not pull in routing-table entries")
}

func TestBootstrapRefreshesRegistryFromRoutingTable(t *testing.T) {
	reg := newTestRegistry(t)
	dht := newMockDHT()

	addr := peer.Address{Host: "router.example.com", Port: 8000}
	dht.setRoutes(transport.RouteEntry{Addr: addr, NodeID: "router-id"})

	b := NewBootstrapper(reg, dht, []string{"seed.example.com:8000"}, newTestLogger())
	b.Bootstrap(context.Background())

	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.Equal(t, "router-id", info.NodeID)
	assert.False(t, info.LastSeen.IsZero())
}

func TestRefreshDoesNotClearKnownNodeID(t *testing.T) {
	reg := newTestRegistry(t)
	dht := newMockDHT()

	addr := peer.Address{Host: "a.example.com", Port: 8000}
	reg.Touch(addr, "node-a")
	dht.setRoutes(transport.RouteEntry{Addr: addr, NodeID: ""})

	b := NewBootstrapper(reg, dht, nil, newTestLogger())
	b.RefreshFromRoutingTable()

	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.Equal(t, "node-a", info.NodeID, "refresh must never overwrite a node id with an empty one")
}

func TestActivePeerCount(t *testing.T) {
	dht := newMockDHT()
	b := NewBootstrapper(newTestRegistry(t), dht, nil, newTestLogger())

	assert.Equal(t, 0, b.ActivePeerCount(), "zero before any join")

	dht.setRoutes(
		transport.RouteEntry{Addr: peer.Address{Host: "a", Port: 1}},
		transport.RouteEntry{Addr: peer.Address{Host: "b", Port: 2}},
	)
	assert.Equal(t, 2, b.ActivePeerCount())
}
