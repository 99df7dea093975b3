package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if len(e) > 8 && e[:8] == "GATEWAY_" {
			key := e[:indexByte(e, '=')]
			os.Unsetenv(key)
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "token", cfg.AuthMode)
	assert.True(t, cfg.WebSocket.Enabled)
}

func TestLoadRequiresBrowserPath(t *testing.T) {
	clearGatewayEnv(t)
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearGatewayEnv(t)
	os.Setenv("GATEWAY_BROWSER_PATH", "/usr/bin/chromium")
	os.Setenv("GATEWAY_PORT", "9090")
	defer clearGatewayEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/chromium", cfg.BrowserPath)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoadMergesYAMLFileThenEnvWins(t *testing.T) {
	clearGatewayEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yamlBody := "browser_path: /opt/browser\nport: 7000\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	os.Setenv("GATEWAY_PORT", "8081")
	defer clearGatewayEnv(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/browser", cfg.BrowserPath)
	assert.Equal(t, 8081, cfg.Port) // env wins over file
}

func TestMergeFileRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.json")
	big := make([]byte, MaxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o644))

	cfg := Default()
	err := mergeFile(cfg, path)
	assert.Error(t, err)
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	out := splitCSV(" a, b ,,c")
	assert.Equal(t, []string{"a", "b", "c"}, out)
}
