package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, Validate(config))

	assert.Equal(t, 3*time.Second, config.Queue.PollInterval)
	assert.Equal(t, 20*time.Minute, config.Queue.TaskTimeout)
	assert.True(t, config.Browser.Headless)
}

func TestLoadFromFilesMergesAndOverrides(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[site]
base_url = "https://jobs.example.com"
login_url = "https://jobs.example.com/login"
home_url = "https://neutral.example.com"
cursor_file = "./cursors.toml"
`), 0o644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9100
`), 0o644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	// Later files win; untouched sections keep defaults.
	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "https://jobs.example.com", config.Site.BaseURL)
	assert.Equal(t, 3*time.Second, config.Queue.PollInterval)
}

func TestLoadFromFilesEnvOverrides(t *testing.T) {
	t.Setenv("APPELLO_SERVER_PORT", "9200")
	t.Setenv("APPELLO_SITE_USERNAME", "worker@example.com")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, "worker@example.com", config.Site.Username)
}

func TestValidateRejectsBadPort(t *testing.T) {
	config := NewDefaultConfig()
	config.Server.Port = -1
	assert.Error(t, Validate(config))
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9300, "0.0.0.0")
	assert.Equal(t, 9300, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9300, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
