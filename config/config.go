// Package config loads and validates node configuration from a YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultP2PPort = 8000
	DefaultDataDir = "./data"

	// maxNodeIDLength bounds configured node identifiers; they end up in
	// DHT keys and gossip payloads.
	maxNodeIDLength = 100
)

// Config holds the node's settings.
type Config struct {
	// NodeID is the stable identifier of this node. Generated at startup
	// when empty.
	NodeID string `yaml:"node_id"`
	// P2PPort is the port the DHT transport listens on.
	P2PPort int `yaml:"p2p_port"`
	// DataDir holds the peer file, key store and content cache.
	DataDir string `yaml:"data_dir"`
	// BootstrapPeers are the seed addresses used to join the network,
	// as host:port strings.
	BootstrapPeers []string `yaml:"bootstrap_peers"`
	// Extensions names the compiled-in extensions to activate.
	Extensions []string `yaml:"extensions"`
	// LogLevel is a logrus level name; empty means info.
	LogLevel string `yaml:"log_level"`

	// MasterPassword protects the key store at rest. Environment only,
	// never read from or written to the config file.
	MasterPassword string `yaml:"-"`
}

// Default returns a config with built-in defaults applied.
func Default() *Config {
	return &Config{
		P2PPort: DefaultP2PPort,
		DataDir: DefaultDataDir,
	}
}

// Load reads the YAML config at path, fills in defaults and applies
// environment overrides. An empty path skips the file and uses defaults
// plus environment only; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		applyDefaults(cfg)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.P2PPort == 0 {
		cfg.P2PPort = DefaultP2PPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATAMESH_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("DATAMESH_P2P_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.P2PPort = port
		}
	}
	if v := os.Getenv("DATAMESH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DATAMESH_PEERS"); v != "" {
		cfg.BootstrapPeers = splitPeerList(v)
	}
	if v := os.Getenv("DATAMESH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KEY_MASTER_PASSWORD"); v != "" {
		cfg.MasterPassword = v
	}
}

func splitPeerList(s string) []string {
	parts := strings.Split(s, ",")
	peers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			peers = append(peers, trimmed)
		}
	}
	return peers
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.P2PPort < 1 || c.P2PPort > 65535 {
		problems = append(problems, fmt.Sprintf("p2p_port must be between 1 and 65535, got %d", c.P2PPort))
	}
	if len(c.NodeID) > maxNodeIDLength {
		problems = append(problems, fmt.Sprintf("node_id must be %d characters or less", maxNodeIDLength))
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
