// Package config loads rsg.yaml, the configuration of a scene graph replica.
//
// A minimal file names the replica; every other section is optional and
// switches on one adapter:
//
//	replica: arm
//	log_level: debug
//	codec:
//	  json: true
//	  binary: false
//	redis:
//	  url: redis://localhost:6379
//	  channel: rsg:updates
//	registry:
//	  endpoints: [localhost:2379]
//	  namespace: lab
//	  ttl: 15
//	journal:
//	  path: /var/lib/rsg/journal
//	filters:
//	  output: op != "SetTransform"
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvReplica           = "RSG_REPLICA"
	EnvLogLevel          = "RSG_LOG_LEVEL"
	EnvRedisURL          = "RSG_REDIS_URL"
	EnvRegistryEndpoints = "RSG_REGISTRY_ENDPOINTS"
)

// Config represents an rsg.yaml file.
type Config struct {
	// Replica names this process among its peers.
	Replica string `yaml:"replica"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level,omitempty"`

	Codec    *CodecConfig    `yaml:"codec,omitempty"`
	Redis    *RedisConfig    `yaml:"redis,omitempty"`
	Registry *RegistryConfig `yaml:"registry,omitempty"`
	Journal  *JournalConfig  `yaml:"journal,omitempty"`
	Filters  *FilterConfig   `yaml:"filters,omitempty"`
}

// CodecConfig toggles the encoders attached to the store.
type CodecConfig struct {
	// JSON enables the textual codec. Default: true.
	JSON *bool `yaml:"json,omitempty"`

	// Binary enables the binary codec. Default: false.
	Binary bool `yaml:"binary,omitempty"`

	// Indent pretty-prints textual messages.
	Indent bool `yaml:"indent,omitempty"`
}

// JSONEnabled reports whether the textual codec is on.
func (c *CodecConfig) JSONEnabled() bool {
	if c == nil || c.JSON == nil {
		return true
	}
	return *c.JSON
}

// BinaryEnabled reports whether the binary codec is on.
func (c *CodecConfig) BinaryEnabled() bool {
	return c != nil && c.Binary
}

// RedisConfig configures the Redis output port and subscriber.
type RedisConfig struct {
	URL string `yaml:"url"`

	// Channel publishes textual updates on pub/sub.
	Channel string `yaml:"channel,omitempty"`

	// List pushes textual updates onto a list instead of Channel.
	List string `yaml:"list,omitempty"`

	// BinaryChannel carries binary updates when the binary codec is on.
	BinaryChannel string `yaml:"binary_channel,omitempty"`

	// ReplyChannel receives the results of applied remote updates.
	ReplyChannel string `yaml:"reply_channel,omitempty"`

	// Subscribe applies updates received on Channel or List.
	Subscribe bool `yaml:"subscribe,omitempty"`

	// Timeout bounds each Redis call. Format: Go duration. Default: 5s.
	Timeout string `yaml:"timeout,omitempty"`

	// HeartbeatInterval refreshes the replica heartbeat. Default: 10s.
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`
}

// GetTimeout parses Timeout, returning the default when unset or invalid.
func (r *RedisConfig) GetTimeout() time.Duration {
	return parseDuration(r.Timeout, 5*time.Second)
}

// GetHeartbeatInterval parses HeartbeatInterval, returning the default when
// unset or invalid.
func (r *RedisConfig) GetHeartbeatInterval() time.Duration {
	return parseDuration(r.HeartbeatInterval, 10*time.Second)
}

// RegistryConfig configures etcd federation.
type RegistryConfig struct {
	Endpoints []string `yaml:"endpoints"`

	// Namespace is the etcd key prefix. Default: "rsg".
	Namespace string `yaml:"namespace,omitempty"`

	// TTL is the lease time-to-live in seconds. Default: 30.
	TTL int `yaml:"ttl,omitempty"`

	// RootID is the published root of this replica's subgraph. Default:
	// derived from the replica name.
	RootID string `yaml:"root_id,omitempty"`

	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// GetNamespace returns the namespace or its default.
func (r *RegistryConfig) GetNamespace() string {
	if r == nil || r.Namespace == "" {
		return "rsg"
	}
	return r.Namespace
}

// GetTTL returns the TTL or its default.
func (r *RegistryConfig) GetTTL() int {
	if r == nil || r.TTL <= 0 {
		return 30
	}
	return r.TTL
}

// TLSConfig holds etcd client certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// JournalConfig configures the update journal.
type JournalConfig struct {
	// Path is the BadgerDB directory. Required unless InMemory.
	Path string `yaml:"path,omitempty"`

	InMemory   bool `yaml:"in_memory,omitempty"`
	SyncWrites bool `yaml:"sync_writes,omitempty"`

	// Replay rebuilds the store from the journal on start. Default: true.
	Replay *bool `yaml:"replay,omitempty"`
}

// ReplayEnabled reports whether the journal is replayed on start.
func (j *JournalConfig) ReplayEnabled() bool {
	if j == nil || j.Replay == nil {
		return true
	}
	return *j.Replay
}

// FilterConfig holds CEL mutation filters.
type FilterConfig struct {
	// Input drops received updates that do not match.
	Input string `yaml:"input,omitempty"`

	// Output drops local mutations before they reach the encoders.
	Output string `yaml:"output,omitempty"`
}

// GetLogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the sections that are present.
func (c *Config) Validate() error {
	var errs []error
	if c.Replica == "" {
		errs = append(errs, errors.New("replica is required"))
	}
	if r := c.Redis; r != nil {
		if r.URL == "" {
			errs = append(errs, errors.New("redis.url is required"))
		}
		if (r.Channel == "") == (r.List == "") {
			errs = append(errs, errors.New("redis needs exactly one of channel or list"))
		}
		if c.Codec.BinaryEnabled() && r.BinaryChannel == "" {
			errs = append(errs, errors.New("redis.binary_channel is required when the binary codec is on"))
		}
	}
	if r := c.Registry; r != nil && len(r.Endpoints) == 0 {
		errs = append(errs, errors.New("registry.endpoints cannot be empty"))
	}
	if j := c.Journal; j != nil && j.Path == "" && !j.InMemory {
		errs = append(errs, errors.New("journal.path is required unless journal.in_memory is set"))
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides file settings with RSG_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvReplica); v != "" {
		c.Replica = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvRegistryEndpoints); v != "" {
		if c.Registry == nil {
			c.Registry = &RegistryConfig{}
		}
		c.Registry.Endpoints = splitList(v)
	}
}

// Parse decodes rsg.yaml content.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Load reads and parses an rsg.yaml file from the given path.
// If the path is a directory, it looks for rsg.yaml or rsg.yml in it.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"rsg.yaml", "rsg.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no rsg.yaml or rsg.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadFromDir searches for rsg.yaml starting from dir and walking up to
// parent directories until found or the filesystem root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}
		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no rsg.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
