// Package actionlint adapts the rhysd/actionlint linter to the rule-engine
// port used by the review orchestrator.
package actionlint

import (
	"fmt"
	"io"
	"strings"

	"github.com/rhysd/actionlint"

	"github.com/replikanti/flowlint/internal/domain"
)

// syntaxKind is the actionlint rule name for YAML/workflow syntax errors.
// A file with a syntax error cannot be meaningfully checked by the other
// rules, so it is reported as an evaluation error instead of findings.
const syntaxKind = "syntax-check"

// Engine runs actionlint over a single workflow file.
type Engine struct{}

// NewEngine creates a rule engine backed by actionlint.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate lints one workflow file and returns findings in source order.
// A non-nil error means the file could not be parsed at all; partial
// results are never returned alongside an error.
func (e *Engine) Evaluate(path string, content []byte, cfg domain.LintConfig) ([]domain.Finding, error) {
	linter, err := actionlint.NewLinter(io.Discard, &actionlint.LinterOptions{})
	if err != nil {
		return nil, fmt.Errorf("create linter: %w", err)
	}

	errs, err := linter.Lint(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("lint %s: %w", path, err)
	}

	findings := make([]domain.Finding, 0, len(errs))
	for _, lintErr := range errs {
		if lintErr.Kind == syntaxKind {
			return nil, fmt.Errorf("%s:%d:%d: %s", path, lintErr.Line, lintErr.Column, lintErr.Message)
		}
		findings = append(findings, domain.Finding{
			Rule:     lintErr.Kind,
			Severity: e.severityFor(lintErr.Kind, cfg),
			Path:     path,
			Message:  lintErr.Message,
			Line:     lintErr.Line,
		})
	}
	return findings, nil
}

// severityFor resolves the severity of a rule, honoring per-repository
// overrides. Rules without an override are advisory.
func (e *Engine) severityFor(rule string, cfg domain.LintConfig) domain.Severity {
	if override, ok := cfg.RuleSeverity[rule]; ok {
		switch domain.Severity(strings.ToLower(override)) {
		case domain.SeverityMust:
			return domain.SeverityMust
		case domain.SeverityShould:
			return domain.SeverityShould
		case domain.SeverityNit:
			return domain.SeverityNit
		}
	}
	return domain.SeverityShould
}
