package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikanti/flowlint/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(2*1024*1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 100, cfg.Server.RateLimitPerMinute)
	assert.False(t, cfg.Server.TrustProxy)

	assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
	assert.Equal(t, "FlowLint", cfg.GitHub.CheckName)
	assert.Equal(t, "flowlint", cfg.GitHub.AppSlug)
	assert.Equal(t, "30s", cfg.GitHub.Timeout)
	assert.Equal(t, 3, cfg.GitHub.MaxRetries)

	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, "2s", cfg.Queue.InitialBackoff)
	assert.Equal(t, 50, cfg.Queue.DegradedThreshold)
	assert.Equal(t, "45s", cfg.Queue.DrainTimeout)

	assert.Equal(t, []string{".github/workflows/**/*.yml", ".github/workflows/**/*.yaml"}, cfg.Lint.IncludeGlobs)
	assert.Equal(t, 50, cfg.Lint.SummaryLimit)
	assert.True(t, cfg.Lint.Annotations)

	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  addr: ":9999"
  webhookSecret: file-secret
github:
  appId: 77
  checkName: CustomLint
queue:
  workers: 2
lint:
  summaryLimit: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flowlint.yaml"), []byte(content), 0o600))

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "file-secret", cfg.Server.WebhookSecret)
	assert.Equal(t, int64(77), cfg.GitHub.AppID)
	assert.Equal(t, "CustomLint", cfg.GitHub.CheckName)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 10, cfg.Lint.SummaryLimit)
	// Unset values keep their defaults.
	assert.Equal(t, "flowlint", cfg.GitHub.AppSlug)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  webhookSecret: ${FLOWLINT_TEST_SECRET}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flowlint.yaml"), []byte(content), 0o600))
	t.Setenv("FLOWLINT_TEST_SECRET", "from-env")

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Server.WebhookSecret)
}

func TestLoad_UnreadableFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flowlint.yaml"), []byte("server: [broken"), 0o600))

	_, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, config.Duration("30s", time.Minute))
	assert.Equal(t, time.Minute, config.Duration("", time.Minute))
	assert.Equal(t, time.Minute, config.Duration("not-a-duration", time.Minute))
	assert.Equal(t, time.Minute, config.Duration("-5s", time.Minute))
}
