package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().ListenAddress, cfg.ListenAddress)
}

func TestLoadParsesTomlOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rift.toml")
	body := `
listen_address = ":9000"
data_dir = "/var/lib/rift"
monitor_interval = "30s"

[base_permission_levels]
Server = "Read"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddress)
	assert.Equal(t, "/var/lib/rift", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval)
	assert.Equal(t, models.PermissionRead, cfg.BaseLevels()[models.ResourceTypeServer])
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestResolvePathPrefersFlag(t *testing.T) {
	t.Setenv(EnvConfigPath, "/env/path.toml")
	assert.Equal(t, "/flag/path.toml", ResolvePath("/flag/path.toml"))
	assert.Equal(t, "/env/path.toml", ResolvePath(""))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rift.toml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_address = ":8120"
data_dir = "/etc/rift"
`), 0o600))

	reloaded := make(chan Config, 1)
	w, err := Watch(path, func(cfg Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`listen_address = ":9999"
data_dir = "/etc/rift"
`), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":9999", cfg.ListenAddress)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload after writing the config file")
	}
}
