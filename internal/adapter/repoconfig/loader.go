// Package repoconfig loads the per-repository lint configuration from the
// repository itself, pinned to the commit under review.
package repoconfig

import (
	"context"
	"errors"

	"gopkg.in/yaml.v3"

	"github.com/replikanti/flowlint/internal/adapter/rest"
	"github.com/replikanti/flowlint/internal/domain"
)

// candidatePaths are checked in order; the first file that exists wins.
var candidatePaths = []string{
	".flowlint.yml",
	".flowlint.yaml",
	"flowlint.config.yml",
}

// ContentsFetcher fetches a file from a repository at a specific ref.
type ContentsFetcher interface {
	GetContents(ctx context.Context, installationID int64, repo domain.Repo, path, ref string) ([]byte, error)
}

// Logger is the logging surface this loader needs.
type Logger interface {
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
}

// Loader resolves a repository's lint configuration against service defaults.
type Loader struct {
	contents ContentsFetcher
	defaults domain.LintConfig
	logger   Logger
}

// NewLoader creates a loader that falls back to the given defaults whenever
// a repository carries no usable configuration file.
func NewLoader(contents ContentsFetcher, defaults domain.LintConfig, logger Logger) *Loader {
	return &Loader{contents: contents, defaults: defaults, logger: logger}
}

// fileConfig mirrors the repository config file. Scalar fields are pointers
// so an absent key keeps the service default instead of zeroing it.
type fileConfig struct {
	Include      []string          `yaml:"include"`
	Ignore       []string          `yaml:"ignore"`
	SummaryLimit *int              `yaml:"summary_limit"`
	Annotations  *bool             `yaml:"annotations"`
	RuleSeverity map[string]string `yaml:"rule_severity"`
}

// Load fetches the repository's config at the given ref and merges it over
// the service defaults. The config file is an optional refinement, so every
// failure mode resolves to the defaults: missing files fall through to the
// next candidate, and fetch or parse failures log a warning and use the
// defaults rather than failing the review.
func (l *Loader) Load(ctx context.Context, installationID int64, repo domain.Repo, ref string) (domain.LintConfig, error) {
	for _, path := range candidatePaths {
		raw, err := l.contents.GetContents(ctx, installationID, repo, path, ref)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			l.logger.LogWarning(ctx, "failed to fetch repository config, using defaults", map[string]interface{}{
				"repository": repo.FullName(),
				"path":       path,
				"ref":        ref,
				"error":      err.Error(),
			})
			return l.defaults, nil
		}

		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			l.logger.LogWarning(ctx, "ignoring unparseable repository config", map[string]interface{}{
				"repository": repo.FullName(),
				"path":       path,
				"ref":        ref,
				"error":      err.Error(),
			})
			return l.defaults, nil
		}
		return l.merge(fc), nil
	}
	return l.defaults, nil
}

func (l *Loader) merge(fc fileConfig) domain.LintConfig {
	merged := l.defaults
	if len(fc.Include) > 0 {
		merged.IncludeGlobs = fc.Include
	}
	if len(fc.Ignore) > 0 {
		merged.IgnoreGlobs = fc.Ignore
	}
	if fc.SummaryLimit != nil && *fc.SummaryLimit > 0 {
		merged.SummaryLimit = *fc.SummaryLimit
	}
	if fc.Annotations != nil {
		merged.Annotations = *fc.Annotations
	}
	if len(fc.RuleSeverity) > 0 {
		merged.RuleSeverity = fc.RuleSeverity
	}
	return merged
}

func isNotFound(err error) bool {
	var restErr *rest.Error
	return errors.As(err, &restErr) && restErr.StatusCode == 404
}
