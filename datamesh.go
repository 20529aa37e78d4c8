// Package datamesh implements a node in a decentralized data-sharing
// network. Peers exchange encrypted, content-addressed payloads over a
// distributed hash table while maintaining their own view of network
// membership: discovery and bootstrap, health scoring, a persistent peer
// registry and gossip-style peer exchange.
//
// The DHT transport itself is an external collaborator consumed through the
// transport.DHT interface; this module provides everything that runs on top
// of it.
//
// Example:
//
//	cfg := config.Default()
//	cfg.BootstrapPeers = []string{"seed.example.com:8000"}
//	node, err := datamesh.NewNode(cfg, dht, nil, logrus.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	hash, _ := node.PutData(ctx, []byte("hello"))
//	data, _ := node.GetData(ctx, hash)
package datamesh

// Version is the module version, set at build time via -ldflags.
var Version = "dev"
