package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeConfig is a single node's bootstrap configuration.
type NodeConfig struct {
	NodeID          string            `yaml:"node_id"`
	ListenAddr      string            `yaml:"listen_addr"`
	CoordinatorAddr string            `yaml:"coordinator_addr"`
	PeerAddrs       map[string]string `yaml:"peer_addrs"`
	TotalNodes      int               `yaml:"total_nodes"`
	MetricsAddr     string            `yaml:"metrics_addr"`
	LogLevel        string            `yaml:"log_level"`
}

// defaults applied to zero-value fields after loading, so a minimal YAML
// file (or none at all) still yields a runnable configuration.
func (c *NodeConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":7200"
	}
	if c.CoordinatorAddr == "" {
		c.CoordinatorAddr = "http://localhost:9000"
	}
	if c.TotalNodes == 0 {
		c.TotalNodes = len(c.PeerAddrs) + 1
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9100"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads a NodeConfig from path, lets a fixed set of environment
// variables override the file's values, then applies defaults for fields
// still unset.
// path may be empty, in which case the config is built from defaults and
// environment alone.
func Load(path string) (*NodeConfig, error) {
	cfg := &NodeConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if cfg.NodeID == "" {
		return nil, fmt.Errorf("config: node_id is required")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *NodeConfig) {
	if v := os.Getenv("QUORUMCAST_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("QUORUMCAST_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("QUORUMCAST_COORDINATOR_ADDR"); v != "" {
		cfg.CoordinatorAddr = v
	}
	if v := os.Getenv("QUORUMCAST_PEER_ADDRS"); v != "" {
		cfg.PeerAddrs = parsePeerAddrs(v)
	}
	if v := os.Getenv("QUORUMCAST_TOTAL_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TotalNodes = n
		}
	}
	if v := os.Getenv("QUORUMCAST_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("QUORUMCAST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// parsePeerAddrs parses "node-2=localhost:7201,node-3=localhost:7202"
// into a node id -> address map, for overriding peer_addrs via a single
// environment variable.
func parsePeerAddrs(v string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}
