package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agentd.yaml")

	want := DefaultConfig()
	want.AgentName = "Scout"
	want.Store.Backend = "sqlite"
	want.Store.Path = filepath.Join(t.TempDir(), "kb.db")
	want.Loop.CycleInterval = 250 * time.Millisecond
	want.Tasks.MaxConcurrent = 3
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty name":     "agent_name: \"\"\n",
		"bad backend":    "store:\n  backend: oracle\n",
		"bad interval":   "loop:\n  cycle_interval: -5ms\n",
		"bad log level":  "log_level: chatty\n",
		"bad concurrent": "tasks:\n  max_concurrent: 0\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTD_AGENT_NAME", "EnvAgent")
	t.Setenv("AGENTD_STORE_BACKEND", "sqlite")
	t.Setenv("AGENTD_STORE_PATH", "/tmp/env.db")
	t.Setenv("AGENTD_CYCLE_INTERVAL", "2s")
	t.Setenv("AGENTD_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "EnvAgent", cfg.AgentName)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Loop.CycleInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyDirective(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.ApplyDirective("cognitive_loop=false"))
	assert.False(t, cfg.Agent.CognitiveLoop)

	require.NoError(t, cfg.ApplyDirective("goal_processing=false"))
	assert.False(t, cfg.Agent.GoalProcessing)

	require.NoError(t, cfg.ApplyDirective("knowledge_integration=false"))
	assert.False(t, cfg.Agent.KnowledgeIntegration)

	require.NoError(t, cfg.ApplyDirective("cycle_interval=500ms"))
	assert.Equal(t, 500*time.Millisecond, cfg.Loop.CycleInterval)

	require.NoError(t, cfg.ApplyDirective("max_concurrent=4"))
	assert.Equal(t, 4, cfg.Tasks.MaxConcurrent)

	require.NoError(t, cfg.ApplyDirective(" Priority_Scheduling = true "))
	assert.True(t, cfg.Tasks.PriorityScheduling)

	assert.Error(t, cfg.ApplyDirective("no equals sign"))
	assert.Error(t, cfg.ApplyDirective("=value"))
	assert.Error(t, cfg.ApplyDirective("unknown_key=1"))
	assert.Error(t, cfg.ApplyDirective("max_concurrent=zero"))
	assert.Error(t, cfg.ApplyDirective("cycle_interval=-1s"))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, nil, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	next := DefaultConfig()
	next.AgentName = "Reloaded"
	require.NoError(t, next.Save(path))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "Reloaded", cfg.AgentName)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not deliver the reloaded config")
	}
}
