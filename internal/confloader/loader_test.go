package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Session struct {
		ExpirationSeconds int64  `koanf:"expiration_seconds"`
		Table             string `koanf:"table"`
	} `koanf:"session"`
	WriteBack struct {
		Workers     int           `koanf:"workers"`
		DropIfFull  bool          `koanf:"drop_if_full"`
		TaskTimeout time.Duration `koanf:"task_timeout"`
	} `koanf:"write_back"`
}

func defaults() testConfig {
	var cfg testConfig
	cfg.Session.ExpirationSeconds = 86400
	cfg.Session.Table = "sessions"
	cfg.WriteBack.Workers = 4
	return cfg
}

func TestLoadKeepsDefaultsWithoutSources(t *testing.T) {
	cfg := defaults()
	require.NoError(t, NewLoader(WithEnvPrefix("GOSESSION_TEST_EMPTY_")).Load(&cfg))
	assert.Equal(t, defaults(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
session:
  expiration_seconds: 600
write_back:
  task_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := defaults()
	require.NoError(t, NewLoader(WithConfigFile(path), WithEnvPrefix("GOSESSION_TEST_FILE_")).Load(&cfg))

	assert.Equal(t, int64(600), cfg.Session.ExpirationSeconds)
	assert.Equal(t, "sessions", cfg.Session.Table)
	assert.Equal(t, 2*time.Second, cfg.WriteBack.TaskTimeout)
	assert.Equal(t, 4, cfg.WriteBack.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  table: from_file\n"), 0o644))

	t.Setenv("GOSESSION_SESSION__TABLE", "from_env")
	t.Setenv("GOSESSION_WRITE_BACK__DROP_IF_FULL", "true")
	t.Setenv("GOSESSION_WRITE_BACK__WORKERS", "9")

	cfg := defaults()
	require.NoError(t, NewLoader(WithConfigFile(path)).Load(&cfg))

	assert.Equal(t, "from_env", cfg.Session.Table)
	assert.True(t, cfg.WriteBack.DropIfFull)
	assert.Equal(t, 9, cfg.WriteBack.Workers)
}

func TestLoadOverridesSitBetweenFileAndEnv(t *testing.T) {
	t.Setenv("GOSESSION_TEST_OVR_SESSION__TABLE", "env_table")

	cfg := defaults()
	loader := NewLoader(
		WithEnvPrefix("GOSESSION_TEST_OVR_"),
		WithOverrides(map[string]any{
			"session.table":              "override_table",
			"session.expiration_seconds": 30,
		}),
	)
	require.NoError(t, loader.Load(&cfg))

	assert.Equal(t, "env_table", cfg.Session.Table)
	assert.Equal(t, int64(30), cfg.Session.ExpirationSeconds)
	assert.Contains(t, loader.Keys(), "session.expiration_seconds")
}

func TestLoadMissingFileFails(t *testing.T) {
	cfg := defaults()
	err := NewLoader(WithConfigFile("/nonexistent/gosession.yaml")).Load(&cfg)
	assert.Error(t, err)
}

func TestEnvKeyMapping(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, "write_back.task_timeout", l.envKey("GOSESSION_WRITE_BACK__TASK_TIMEOUT"))
	assert.Equal(t, "cookie.name", l.envKey("GOSESSION_COOKIE__NAME"))
}
