package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
replica: arm
log_level: debug
codec:
  json: false
  binary: true
  indent: true
redis:
  url: redis://localhost:6379
  list: rsg:updates
  binary_channel: rsg:binary
  reply_channel: rsg:results
  subscribe: true
  timeout: 2s
  heartbeat_interval: bogus
registry:
  endpoints: [etcd-1:2379, etcd-2:2379]
  namespace: lab
  ttl: 15
journal:
  in_memory: true
  replay: false
filters:
  input: '!("debug" in attributes)'
  output: op != "SetTransform"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "arm", cfg.Replica)
	assert.Equal(t, slog.LevelDebug, cfg.GetLogLevel())

	assert.False(t, cfg.Codec.JSONEnabled())
	assert.True(t, cfg.Codec.BinaryEnabled())
	assert.True(t, cfg.Codec.Indent)

	assert.Equal(t, "rsg:updates", cfg.Redis.List)
	assert.Equal(t, 2*time.Second, cfg.Redis.GetTimeout())
	assert.Equal(t, 10*time.Second, cfg.Redis.GetHeartbeatInterval(), "invalid durations fall back")
	assert.True(t, cfg.Redis.Subscribe)

	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "lab", cfg.Registry.GetNamespace())
	assert.Equal(t, 15, cfg.Registry.GetTTL())

	assert.True(t, cfg.Journal.InMemory)
	assert.False(t, cfg.Journal.ReplayEnabled())

	assert.Equal(t, `op != "SetTransform"`, cfg.Filters.Output)

	_, err = Parse([]byte("replica: [unclosed"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("replica: base\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, slog.LevelInfo, cfg.GetLogLevel())
	assert.True(t, cfg.Codec.JSONEnabled())
	assert.False(t, cfg.Codec.BinaryEnabled())
	assert.Equal(t, "rsg", cfg.Registry.GetNamespace())
	assert.Equal(t, 30, cfg.Registry.GetTTL())
	assert.True(t, cfg.Journal.ReplayEnabled())
	assert.Nil(t, cfg.Redis)

	cfg.LogLevel = "loud"
	assert.Equal(t, slog.LevelInfo, cfg.GetLogLevel())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{name: "missing replica", yaml: "log_level: info", wantErr: []string{"replica is required"}},
		{
			name:    "redis without target",
			yaml:    "replica: a\nredis:\n  url: redis://x",
			wantErr: []string{"exactly one of channel or list"},
		},
		{
			name:    "redis with both targets",
			yaml:    "replica: a\nredis:\n  url: redis://x\n  channel: c\n  list: l",
			wantErr: []string{"exactly one of channel or list"},
		},
		{
			name:    "binary without channel",
			yaml:    "replica: a\ncodec:\n  binary: true\nredis:\n  url: redis://x\n  channel: c",
			wantErr: []string{"binary_channel"},
		},
		{
			name:    "several problems",
			yaml:    "redis:\n  channel: c\nregistry:\n  namespace: x\njournal:\n  sync_writes: true",
			wantErr: []string{"replica is required", "redis.url", "registry.endpoints", "journal.path"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvReplica, "gripper")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRedisURL, "redis://cache:6379")
	t.Setenv(EnvRegistryEndpoints, " etcd-1:2379 , ,etcd-2:2379")

	cfg := &Config{Replica: "arm"}
	cfg.ApplyEnv()

	assert.Equal(t, "gripper", cfg.Replica)
	assert.Equal(t, slog.LevelWarn, cfg.GetLogLevel())
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.Registry.Endpoints)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "robots", "arm")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "rsg.yml"), []byte("replica: arm\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "arm", cfg.Replica)

	cfg, err = Load(filepath.Join(root, "rsg.yml"))
	require.NoError(t, err)
	assert.Equal(t, "arm", cfg.Replica)

	_, err = Load(nested)
	assert.Error(t, err)
	_, err = Load(filepath.Join(root, "missing.yaml"))
	assert.Error(t, err)

	cfg, err = LoadFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, "arm", cfg.Replica)
}
