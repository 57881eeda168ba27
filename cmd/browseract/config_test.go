package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("", envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, driverPlaywright, cfg.Driver)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 30, cfg.RequestTimeoutSeconds)
	assert.Empty(t, cfg.AllowedDomains)
	assert.Equal(t, "artifacts", cfg.ArtifactsDir)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".browseract"), 0o755))
	require.NoError(t, os.WriteFile(settingsPath(),
		[]byte(`{"headless": false, "retries": 4, "allowed_domains": ["jobs.test"]}`), 0o644))

	cfg, err := loadConfig("", envOf(nil))
	require.NoError(t, err)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 4, cfg.Retries)
	assert.Equal(t, []string{"jobs.test"}, cfg.AllowedDomains)
	// Unset keys keep their defaults.
	assert.Equal(t, 30, cfg.RequestTimeoutSeconds)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browseract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: static
request_timeout_seconds: 5
demo:
  query_text: golang
  snapshot_dir: shots
`), 0o644))

	cfg, err := loadConfig(path, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, driverStatic, cfg.Driver)
	assert.Equal(t, 5, cfg.RequestTimeoutSeconds)
	assert.Equal(t, "golang", cfg.Demo.QueryText)
	assert.Equal(t, "shots", cfg.Demo.SnapshotDir)
	assert.Equal(t, "#company", cfg.Demo.Fields.Company)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"driver": "rod", "log_level": "warn"}`), 0o644))

	cfg, err := loadConfig(path, envOf(map[string]string{
		"BA_DRIVER":                  "static",
		"BA_HEADLESS":                "false",
		"BA_LOG_LEVEL":               "debug",
		"BA_LOG_FORMAT":              "json",
		"BA_REQUEST_TIMEOUT_SECONDS": "12",
		"BA_ALLOWED_DOMAINS":         "a.test, b.test",
		"BA_ARTIFACTS_DIR":           "out/art",
		"BA_REPORT_DIR":              "out/rep",
	}))
	require.NoError(t, err)
	assert.Equal(t, driverStatic, cfg.Driver)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 12, cfg.RequestTimeoutSeconds)
	assert.Equal(t, []string{"a.test", "b.test"}, cfg.AllowedDomains)
	assert.Equal(t, "out/art", cfg.ArtifactsDir)
	assert.Equal(t, "out/rep", cfg.ReportDir)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	_, err := loadConfig(filepath.Join(dir, "missing.json"), envOf(nil))
	assert.ErrorContains(t, err, "read config")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))
	_, err = loadConfig(bad, envOf(nil))
	assert.ErrorContains(t, err, "parse config")

	_, err = loadConfig("", envOf(map[string]string{"BA_HEADLESS": "maybe"}))
	assert.ErrorContains(t, err, "BA_HEADLESS")

	_, err = loadConfig("", envOf(map[string]string{"BA_REQUEST_TIMEOUT_SECONDS": "soon"}))
	assert.ErrorContains(t, err, "BA_REQUEST_TIMEOUT_SECONDS")

	_, err = loadConfig("", envOf(map[string]string{"BA_REQUEST_TIMEOUT_SECONDS": "0"}))
	assert.ErrorContains(t, err, "request_timeout_seconds")

	_, err = loadConfig("", envOf(map[string]string{"BA_DRIVER": "selenium"}))
	assert.ErrorContains(t, err, `unknown driver "selenium"`)
}

func TestParseDomains(t *testing.T) {
	tests := map[string][]string{
		"a.test":               {"a.test"},
		"a.test,b.test":        {"a.test", "b.test"},
		" a.test , ,b.test ":   {"a.test", "b.test"},
		`["a.test", "b.test"]`: {"a.test", "b.test"},
		",":                    {},
	}
	for in, want := range tests {
		assert.Equal(t, want, parseDomains(in), in)
	}
}
