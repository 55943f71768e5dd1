package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"

	"github.com/hiro-org/hiro/internal/runtime"
)

// isolate points XDG at a temp tree so tests never read the host's config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
	require.NotEmpty(t, cfg.DataDir)
	require.Equal(t, filepath.Join(cfg.DataDir, "snapshots.db"), cfg.SnapshotDB)

	rc := cfg.RuntimeConfig()
	def := runtime.DefaultConfig()
	require.Equal(t, def.MaxSteps, rc.MaxSteps)
	require.Equal(t, def.MaxPlanningLayer, rc.MaxPlanningLayer)
	require.Equal(t, def.StuckSoft, rc.StuckSoft)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, "config", AppName)
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(`
logLevel: debug
openai:
  apiKey: file-key
engine:
  maxPlanningLayer: 5
  timeout: 30s
hitl:
  enabled: true
  afterPlanGeneration: true
  rootPlanOnly: true
  reviewTimeout: 90s
`), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "file-key", cfg.OpenAI.APIKey)
	require.Equal(t, 5, cfg.Engine.MaxPlanningLayer)
	require.Equal(t, 30*time.Second, cfg.Engine.Timeout)

	hc := cfg.HITLCoordinatorConfig()
	require.True(t, hc.AfterPlanGeneration)
	require.True(t, hc.RootPlanOnly)
	require.Equal(t, 90*time.Second, hc.ReviewTimeout)
}

func TestEnvOverridesDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("HIRO_LOGLEVEL", "debug")
	t.Setenv("HIRO_OPENAI_APIKEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "env-key", cfg.OpenAI.APIKey)
}

func TestHITLDisabledYieldsDeadCheckpoints(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.HITL.AfterPlanGeneration = true // set but section disabled

	hc := cfg.HITLCoordinatorConfig()
	require.False(t, hc.AfterPlanGeneration)
}

func TestMalformedConfigFileFails(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, "config", AppName)
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte("logLevel: [broken"), 0o644))

	_, err := Load()
	require.Error(t, err)
}
