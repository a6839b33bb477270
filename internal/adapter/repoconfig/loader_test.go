package repoconfig_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikanti/flowlint/internal/adapter/repoconfig"
	"github.com/replikanti/flowlint/internal/adapter/rest"
	"github.com/replikanti/flowlint/internal/domain"
)

// MockContentsFetcher is a mock implementation of the ContentsFetcher interface.
type MockContentsFetcher struct {
	Files    map[string][]byte
	Err      error
	Requests []string
}

func (m *MockContentsFetcher) GetContents(ctx context.Context, installationID int64, repo domain.Repo, path, ref string) ([]byte, error) {
	m.Requests = append(m.Requests, path)
	if m.Err != nil {
		return nil, m.Err
	}
	if content, ok := m.Files[path]; ok {
		return content, nil
	}
	return nil, &rest.Error{Type: rest.ErrTypeInvalidRequest, Message: "Not Found", StatusCode: 404, Service: "github"}
}

type warnLogger struct {
	Warnings []string
}

func (l *warnLogger) LogWarning(_ context.Context, message string, _ map[string]interface{}) {
	l.Warnings = append(l.Warnings, message)
}

func defaults() domain.LintConfig {
	return domain.LintConfig{
		IncludeGlobs: []string{".github/workflows/**/*.yml"},
		SummaryLimit: 50,
		Annotations:  true,
	}
}

func load(t *testing.T, fetcher *MockContentsFetcher) (domain.LintConfig, error) {
	t.Helper()
	loader := repoconfig.NewLoader(fetcher, defaults(), &warnLogger{})
	return loader.Load(context.Background(), 42, domain.Repo{Owner: "acme", Name: "widgets"}, "abc123")
}

func TestLoader_NoConfigFileUsesDefaults(t *testing.T) {
	fetcher := &MockContentsFetcher{}

	cfg, err := load(t, fetcher)

	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
	// All candidates were tried in order.
	assert.Equal(t, []string{".flowlint.yml", ".flowlint.yaml", "flowlint.config.yml"}, fetcher.Requests)
}

func TestLoader_FirstCandidateWins(t *testing.T) {
	fetcher := &MockContentsFetcher{Files: map[string][]byte{
		".flowlint.yml":      []byte("summary_limit: 10\n"),
		"flowlint.config.yml": []byte("summary_limit: 99\n"),
	}}

	cfg, err := load(t, fetcher)

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.SummaryLimit)
	assert.Equal(t, []string{".flowlint.yml"}, fetcher.Requests)
}

func TestLoader_FallsThroughToLaterCandidate(t *testing.T) {
	fetcher := &MockContentsFetcher{Files: map[string][]byte{
		"flowlint.config.yml": []byte("annotations: false\n"),
	}}

	cfg, err := load(t, fetcher)

	require.NoError(t, err)
	assert.False(t, cfg.Annotations)
}

func TestLoader_MergesOverDefaults(t *testing.T) {
	fetcher := &MockContentsFetcher{Files: map[string][]byte{
		".flowlint.yml": []byte(`
include:
  - "ci/**/*.yml"
ignore:
  - "ci/vendor/**"
rule_severity:
  deprecated-commands: must
`),
	}}

	cfg, err := load(t, fetcher)

	require.NoError(t, err)
	assert.Equal(t, []string{"ci/**/*.yml"}, cfg.IncludeGlobs)
	assert.Equal(t, []string{"ci/vendor/**"}, cfg.IgnoreGlobs)
	assert.Equal(t, map[string]string{"deprecated-commands": "must"}, cfg.RuleSeverity)
	// Untouched fields keep the service defaults.
	assert.Equal(t, 50, cfg.SummaryLimit)
	assert.True(t, cfg.Annotations)
}

func TestLoader_UnparseableFileFallsBackToDefaults(t *testing.T) {
	fetcher := &MockContentsFetcher{Files: map[string][]byte{
		".flowlint.yml": []byte("include: [unclosed\n"),
	}}
	logger := &warnLogger{}
	loader := repoconfig.NewLoader(fetcher, defaults(), logger)

	cfg, err := loader.Load(context.Background(), 42, domain.Repo{Owner: "acme", Name: "widgets"}, "abc123")

	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
	assert.Len(t, logger.Warnings, 1)
}

func TestLoader_FetchFailureFallsBackToDefaults(t *testing.T) {
	fetcher := &MockContentsFetcher{
		Err: &rest.Error{Type: rest.ErrTypeServiceUnavailable, Message: "bad gateway", StatusCode: 502, Retryable: true, Service: "github"},
	}
	logger := &warnLogger{}
	loader := repoconfig.NewLoader(fetcher, defaults(), logger)

	cfg, err := loader.Load(context.Background(), 42, domain.Repo{Owner: "acme", Name: "widgets"}, "abc123")

	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
	require.Len(t, logger.Warnings, 1)
	assert.Equal(t, "failed to fetch repository config, using defaults", logger.Warnings[0])
}
