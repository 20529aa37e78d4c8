// Package main runs a datamesh node as a long-lived daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datamesh-network/datamesh"
	"github.com/datamesh-network/datamesh/config"
	"github.com/datamesh-network/datamesh/transport"
)

// shutdownTimeout bounds how long a stop may take before the process gives up.
const shutdownTimeout = 30 * time.Second

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "datameshd",
	Short: "Run a datamesh node",
	Long: `datameshd runs a node in the datamesh data-sharing network.

The node joins the peer network via the configured bootstrap addresses,
maintains its peer registry and serves content-addressed data.`,
	RunE:          runNode,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file")
}

func main() {
	rootCmd.Version = datamesh.Version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		log.SetLevel(level)
	}

	// In-process DHT stand-in. Deployments that participate in a real
	// network swap in a Kademlia transport behind transport.DHT.
	dht := transport.NewMemoryDHT()

	node, err := datamesh.NewNode(cfg, dht, nil, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}
	log.WithField("node_id", node.ID()).Info("Node running, press Ctrl+C to stop")

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		node.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("Shutdown timed out, exiting anyway")
	}
	return nil
}
