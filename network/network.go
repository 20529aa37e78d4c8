package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/crypto"
	"github.com/datamesh-network/datamesh/peer"
	"github.com/datamesh-network/datamesh/transport"
)

// ErrNotStarted is returned by operations invoked before Start has joined
// the network. Distinct from "not found": the node is not ready, the data
// may well exist.
var ErrNotStarted = errors.New("network not started")

const (
	healthCheckInterval  = 60 * time.Second
	peerExchangeInterval = 120 * time.Second
	rebootstrapInterval  = 300 * time.Second

	probeTimeout    = 5 * time.Second
	exchangeTimeout = 5 * time.Second
	joinTimeout     = 30 * time.Second

	// minActivePeers is the routing-table size below which the
	// re-bootstrap loop rejoins. Expected to fire routinely on small networks.
	minActivePeers = 3

	maxSharedPeers     = 20
	maxExchangeFetches = 10

	peersFileName = "known_peers.json"
)

// Options configures a Network.
type Options struct {
	NodeID         string
	DataDir        string
	BootstrapPeers []string
	DHT            transport.DHT
	Cipher         crypto.Cipher
	Logger         *logrus.Logger
}

// Network is the peer lifecycle and data-distribution layer. It owns the
// peer registry and runs the health-check, peer-exchange and re-bootstrap
// loops against the shared DHT transport.
type Network struct {
	nodeID  string
	dataDir string
	seeds   []string
	dht     transport.DHT
	log     *logrus.Logger

	registry     *peer.Registry
	bootstrapper *Bootstrapper
	monitor      *HealthMonitor
	exchanger    *Exchanger
	store        *ContentStore

	mu      sync.Mutex
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New assembles a network from its collaborators. Nothing is started and no
// I/O happens until Start.
func New(opts Options) *Network {
	registry := peer.NewRegistry(filepath.Join(opts.DataDir, peersFileName), opts.Logger)

	n := &Network{
		nodeID:   opts.NodeID,
		dataDir:  opts.DataDir,
		seeds:    opts.BootstrapPeers,
		dht:      opts.DHT,
		log:      opts.Logger,
		registry: registry,
	}

	n.bootstrapper = NewBootstrapper(registry, opts.DHT, opts.BootstrapPeers, opts.Logger)
	n.monitor = NewHealthMonitor(registry, opts.DHT, opts.Logger)
	n.exchanger = NewExchanger(registry, opts.DHT, opts.NodeID, opts.Logger)
	n.store = NewContentStore(opts.DHT, opts.Cipher, opts.NodeID, n.started.Load, opts.Logger)

	return n
}

// Start loads the persisted registry, performs the initial bootstrap and
// launches the background loops. Calling Start on a running network is a
// no-op.
func (n *Network) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started.Load() {
		return nil
	}

	if err := os.MkdirAll(n.dataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	n.registry.Load()
	n.bootstrapper.Bootstrap(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.started.Store(true)

	n.wg.Add(3)
	go n.runLoop(loopCtx, healthCheckInterval, n.monitor.CheckAll)
	go n.runLoop(loopCtx, peerExchangeInterval, n.exchanger.Exchange)
	go n.runLoop(loopCtx, rebootstrapInterval, n.rebootstrapTick)

	n.log.WithField("node_id", n.nodeID).Info("P2P network started")
	return nil
}

// runLoop invokes tick on every interval until the context is cancelled.
func (n *Network) runLoop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer n.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (n *Network) rebootstrapTick(ctx context.Context) {
	active := n.bootstrapper.ActivePeerCount()
	if active >= minActivePeers {
		return
	}
	n.log.WithField("active_peers", active).Info("Peer count low, re-bootstrapping")
	n.bootstrapper.Bootstrap(ctx)
}

// Stop cancels the background loops, waits for them to drain, persists the
// registry and finally releases the transport. The ordering matters: no
// loop may mutate the registry mid-serialization, and the peer file must be
// on disk before the transport goes away.
func (n *Network) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started.Load() {
		return
	}
	n.started.Store(false)

	n.cancel()
	n.wg.Wait()

	n.registry.Save()

	if err := n.dht.Close(); err != nil {
		n.log.WithError(err).Warn("Transport close failed")
	}
	n.log.Info("P2P network stopped")
}

// Running reports whether Start has completed and Stop has not been called.
func (n *Network) Running() bool {
	return n.started.Load()
}

// Put stores plaintext in the DHT under hash. See ContentStore.Put.
func (n *Network) Put(ctx context.Context, hash string, plaintext []byte) error {
	return n.store.Put(ctx, hash, plaintext)
}

// Get retrieves the payload stored under hash. See ContentStore.Get.
func (n *Network) Get(ctx context.Context, hash string) ([]byte, error) {
	return n.store.Get(ctx, hash)
}

// ConnectToPeer joins the given peer on demand. Unlike seed-list and gossip
// parsing, a malformed address here is reported to the caller.
func (n *Network) ConnectToPeer(ctx context.Context, raw string) error {
	if !n.started.Load() {
		return ErrNotStarted
	}

	addr, err := peer.ParseAddress(raw)
	if err != nil {
		return err
	}

	jctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	if err := n.dht.Join(jctx, []peer.Address{addr}); err != nil {
		n.log.WithField("peer", addr.String()).WithError(err).Error("Failed to connect to peer")
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	n.registry.Connected(addr)
	n.log.WithField("peer", addr.String()).Info("Connected to peer")
	return nil
}

// PeerView is the externally visible shape of a registry entry.
type PeerView struct {
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	NodeID      string  `json:"node_id,omitempty"`
	LastSeen    float64 `json:"last_seen"`
	LatencyMS   float64 `json:"latency_ms"`
	SuccessRate float64 `json:"success_rate"`
	Healthy     bool    `json:"healthy"`
}

// ListPeers returns known peers, most recently seen first. With healthyOnly
// set, unhealthy peers are filtered out.
func (n *Network) ListPeers(healthyOnly bool) []PeerView {
	now := time.Now()

	infos := n.registry.Snapshot()
	views := make([]PeerView, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		healthy := info.Healthy(now)
		if healthyOnly && !healthy {
			continue
		}

		var lastSeen float64
		if !info.LastSeen.IsZero() {
			lastSeen = float64(info.LastSeen.UnixNano()) / float64(time.Second)
		}
		views = append(views, PeerView{
			Host:        info.Addr.Host,
			Port:        info.Addr.Port,
			NodeID:      info.NodeID,
			LastSeen:    lastSeen,
			LatencyMS:   float64(info.Latency) / float64(time.Millisecond),
			SuccessRate: info.SuccessRate(),
			Healthy:     healthy,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].LastSeen > views[j].LastSeen
	})
	return views
}

// Stats summarizes the node's view of the network.
type Stats struct {
	TotalPeers     int     `json:"total_peers"`
	HealthyPeers   int     `json:"healthy_peers"`
	ActivePeers    int     `json:"active_peers"`
	BootstrapNodes int     `json:"bootstrap_nodes"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
}

// NetworkStats reports registry and routing-table counts. Average latency
// is computed over currently healthy peers only, zero when there are none.
func (n *Network) NetworkStats() Stats {
	now := time.Now()

	infos := n.registry.Snapshot()
	stats := Stats{
		TotalPeers:     len(infos),
		ActivePeers:    n.bootstrapper.ActivePeerCount(),
		BootstrapNodes: len(n.seeds),
	}

	var totalLatencyMS float64
	for i := range infos {
		if infos[i].Healthy(now) {
			stats.HealthyPeers++
			totalLatencyMS += float64(infos[i].Latency) / float64(time.Millisecond)
		}
	}
	if stats.HealthyPeers > 0 {
		stats.AvgLatencyMS = totalLatencyMS / float64(stats.HealthyPeers)
	}
	return stats
}
