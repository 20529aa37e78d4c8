package datamesh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/config"
	"github.com/datamesh-network/datamesh/crypto"
	"github.com/datamesh-network/datamesh/extension"
	"github.com/datamesh-network/datamesh/network"
	"github.com/datamesh-network/datamesh/storage"
	"github.com/datamesh-network/datamesh/transport"
)

const (
	keysDirName   = "keys"
	cacheFileName = "content.db"
)

// Node ties the network layer to its local collaborators: the key store,
// the content cache and any configured extensions.
type Node struct {
	cfg   *config.Config
	log   *logrus.Logger
	keys  *crypto.KeyStore
	cache *storage.Cache
	net   *network.Network
	exts  []extension.Extension
}

// NewNode validates cfg and assembles a node over the given DHT transport.
// A nil extension registry is allowed when the configuration activates no
// extensions. The node does not touch the network until Start.
func NewNode(cfg *config.Config, dht transport.DHT, extensions *extension.Registry, log *logrus.Logger) (*Node, error) {
	if log == nil {
		log = logrus.New()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = crypto.GenerateNodeID()
		log.WithField("node_id", cfg.NodeID).Info("Generated node identity")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	keys, err := crypto.NewKeyStore(filepath.Join(cfg.DataDir, keysDirName), []byte(cfg.MasterPassword), log)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	cache, err := storage.Open(filepath.Join(cfg.DataDir, cacheFileName))
	if err != nil {
		return nil, fmt.Errorf("open content cache: %w", err)
	}

	var exts []extension.Extension
	if len(cfg.Extensions) > 0 {
		if extensions == nil {
			cache.Close()
			return nil, fmt.Errorf("configuration activates extensions %v but no registry was provided", cfg.Extensions)
		}
		exts, err = extensions.Resolve(cfg.Extensions)
		if err != nil {
			cache.Close()
			return nil, err
		}
	}

	net := network.New(network.Options{
		NodeID:         cfg.NodeID,
		DataDir:        cfg.DataDir,
		BootstrapPeers: cfg.BootstrapPeers,
		DHT:            dht,
		Cipher:         keys,
		Logger:         log,
	})

	return &Node{
		cfg:   cfg,
		log:   log,
		keys:  keys,
		cache: cache,
		net:   net,
		exts:  exts,
	}, nil
}

// ID returns the node's stable identifier.
func (n *Node) ID() string {
	return n.cfg.NodeID
}

// Start joins the network and initializes extensions. A failing extension
// aborts startup and tears the network back down.
func (n *Node) Start(ctx context.Context) error {
	if err := n.net.Start(ctx); err != nil {
		return err
	}

	for i, ext := range n.exts {
		if err := ext.Init(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if serr := n.exts[j].Shutdown(); serr != nil {
					n.log.WithField("extension", n.exts[j].Name()).WithError(serr).Warn("Extension shutdown failed")
				}
			}
			n.net.Stop()
			return fmt.Errorf("initialize extension %q: %w", ext.Name(), err)
		}
		n.log.WithField("extension", ext.Name()).Info("Extension initialized")
	}

	return nil
}

// Stop shuts down extensions, the network layer and the local cache, in
// that order.
func (n *Node) Stop() {
	for i := len(n.exts) - 1; i >= 0; i-- {
		if err := n.exts[i].Shutdown(); err != nil {
			n.log.WithField("extension", n.exts[i].Name()).WithError(err).Warn("Extension shutdown failed")
		}
	}

	n.net.Stop()

	if err := n.cache.Close(); err != nil {
		n.log.WithError(err).Warn("Content cache close failed")
	}
}

// PutData hashes plaintext, caches it locally and stores it in the DHT.
// Returns the content hash under which the data is addressable.
func (n *Node) PutData(ctx context.Context, plaintext []byte) (string, error) {
	hash := crypto.HashData(plaintext)

	if err := n.cache.Put(hash, plaintext); err != nil {
		n.log.WithError(err).Warn("Local cache write failed")
	}

	if err := n.net.Put(ctx, hash, plaintext); err != nil {
		return "", err
	}
	return hash, nil
}

// BroadcastData distributes plaintext to the network. Storing under the
// content hash is the distribution mechanism; this is PutData by another name.
func (n *Node) BroadcastData(ctx context.Context, plaintext []byte) (string, error) {
	return n.PutData(ctx, plaintext)
}

// GetData returns the payload for hash, serving from the local cache when
// possible and falling back to the network. A network hit is written back
// to the cache. A nil result with nil error means the data is not
// available.
func (n *Node) GetData(ctx context.Context, hash string) ([]byte, error) {
	data, ok, err := n.cache.Get(hash)
	if err != nil {
		n.log.WithError(err).Warn("Local cache read failed")
	} else if ok {
		return data, nil
	}

	data, err = n.net.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := n.cache.Put(hash, data); err != nil {
			n.log.WithError(err).Warn("Local cache write failed")
		}
	}
	return data, nil
}

// ConnectToPeer joins the given peer address on demand.
func (n *Node) ConnectToPeer(ctx context.Context, addr string) error {
	return n.net.ConnectToPeer(ctx, addr)
}

// ListPeers returns the node's view of known peers.
func (n *Node) ListPeers(healthyOnly bool) []network.PeerView {
	return n.net.ListPeers(healthyOnly)
}

// NetworkStats summarizes network membership.
func (n *Node) NetworkStats() network.Stats {
	return n.net.NetworkStats()
}

// RotateKey generates a new encryption key version. Previously stored
// payloads remain decryptable through the retained older versions.
func (n *Node) RotateKey() (int, error) {
	return n.keys.Rotate()
}
