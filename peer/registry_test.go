package peer

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), "known_peers.json"), newTestLogger())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)

	fresh := Address{Host: "fresh.example.com", Port: 8000}
	stale := Address{Host: "stale.example.com", Port: 8001}
	unverified := Address{Host: "gossip.example.com", Port: 8002}

	reg.mu.Lock()
	reg.peers[fresh] = &Info{
		Addr:      fresh,
		NodeID:    "node-fresh",
		LastSeen:  time.Now().Add(-time.Hour),
		Latency:   50 * time.Millisecond,
		Successes: 5,
	}
	reg.peers[stale] = &Info{
		Addr:      stale,
		LastSeen:  time.Now().Add(-25 * time.Hour),
		Successes: 5,
	}
	reg.peers[unverified] = &Info{Addr: unverified}
	reg.mu.Unlock()

	reg.Save()

	reloaded := NewRegistry(reg.path, newTestLogger())
	reloaded.Load()

	require.Equal(t, 1, reloaded.Len(), "only the entry seen within 24h survives the round trip")

	info, ok := reloaded.Get(fresh)
	require.True(t, ok)
	assert.Equal(t, "node-fresh", info.NodeID)
	assert.Equal(t, 5, info.Successes)
	assert.InDelta(t, 50, float64(info.Latency)/float64(time.Millisecond), 0.001)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), info.LastSeen, time.Second)

	_, ok = reloaded.Get(stale)
	assert.False(t, ok)
	_, ok = reloaded.Get(unverified)
	assert.False(t, ok)
}

func TestSaveRestrictsFilePermissions(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Touch(Address{Host: "a", Port: 1}, "")
	reg.Save()

	fi, err := os.Stat(reg.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Load()
	assert.Equal(t, 0, reg.Len())
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_peers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	reg := NewRegistry(path, newTestLogger())
	reg.Load()
	assert.Equal(t, 0, reg.Len())
}

func TestPrune(t *testing.T) {
	reg := newTestRegistry(t)

	dead := Address{Host: "dead.example.com", Port: 8000}
	alive := Address{Host: "alive.example.com", Port: 8001}
	untried := Address{Host: "untried.example.com", Port: 8002}

	reg.mu.Lock()
	// Not seen for ~28 hours, all probes failed.
	reg.peers[dead] = &Info{
		Addr:     dead,
		LastSeen: time.Now().Add(-100000 * time.Second),
		Failures: 10,
	}
	reg.peers[alive] = &Info{
		Addr:      alive,
		LastSeen:  time.Now(),
		Successes: 5,
	}
	// Learned via gossip, never probed.
	reg.peers[untried] = &Info{Addr: untried}
	reg.mu.Unlock()

	removed := reg.Prune()
	assert.Equal(t, 1, removed)

	_, ok := reg.Get(dead)
	assert.False(t, ok, "stale failing peer must be pruned")
	_, ok = reg.Get(alive)
	assert.True(t, ok, "fresh peer must be retained")
	_, ok = reg.Get(untried)
	assert.True(t, ok, "peer with no attempts must never be pruned")
}

func TestMergeExchangedDoesNotClobberVerifiedState(t *testing.T) {
	reg := newTestRegistry(t)
	addr := Address{Host: "a.example.com", Port: 8000}

	reg.RecordSuccess(addr, 20*time.Millisecond)

	inserted := reg.MergeExchanged(addr, "some-other-id")
	assert.False(t, inserted)

	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.Equal(t, 1, info.Successes)
	assert.False(t, info.LastSeen.IsZero(), "verified entry must not regress to unverified")
	assert.Empty(t, info.NodeID, "gossip must not overwrite existing entries")
}

func TestMergeExchangedInsertsUnverified(t *testing.T) {
	reg := newTestRegistry(t)
	addr := Address{Host: "new.example.com", Port: 8000}

	inserted := reg.MergeExchanged(addr, "node-new")
	assert.True(t, inserted)

	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.True(t, info.LastSeen.IsZero())
	assert.Equal(t, "node-new", info.NodeID)
	assert.False(t, info.Healthy(time.Now()), "gossiped peer must pass a probe before counting as healthy")
}

func TestTouchNeverClearsNodeID(t *testing.T) {
	reg := newTestRegistry(t)
	addr := Address{Host: "a.example.com", Port: 8000}

	reg.Touch(addr, "node-a")
	reg.Touch(addr, "")

	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.Equal(t, "node-a", info.NodeID)
}

func TestRecordFailureIgnoresUnknownPeer(t *testing.T) {
	reg := newTestRegistry(t)
	reg.RecordFailure(Address{Host: "ghost.example.com", Port: 8000})
	assert.Equal(t, 0, reg.Len())
}

func TestRecordSuccessUpdatesEntry(t *testing.T) {
	reg := newTestRegistry(t)
	addr := Address{Host: "a.example.com", Port: 8000}

	reg.MergeExchanged(addr, "node-a")
	reg.RecordSuccess(addr, 35*time.Millisecond)

	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.Equal(t, 1, info.Successes)
	assert.Equal(t, 35*time.Millisecond, info.Latency)
	assert.True(t, info.Healthy(time.Now()))
}

func TestConnected(t *testing.T) {
	reg := newTestRegistry(t)
	addr := Address{Host: "a.example.com", Port: 8000}

	reg.Connected(addr)
	info, ok := reg.Get(addr)
	require.True(t, ok)
	assert.Equal(t, 0, info.Successes, "first manual connect only marks the peer seen")

	reg.Connected(addr)
	info, _ = reg.Get(addr)
	assert.Equal(t, 1, info.Successes)
}

func TestHealthyPeers(t *testing.T) {
	reg := newTestRegistry(t)

	healthy := Address{Host: "up.example.com", Port: 8000}
	reg.RecordSuccess(healthy, 10*time.Millisecond)
	reg.MergeExchanged(Address{Host: "unknown.example.com", Port: 8001}, "")

	got := reg.HealthyPeers(time.Now())
	require.Len(t, got, 1)
	assert.Equal(t, healthy, got[0].Addr)
}
