package lint_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikanti/flowlint/internal/domain"
	"github.com/replikanti/flowlint/internal/lint"
)

func finding(rule string, severity domain.Severity) domain.Finding {
	return domain.Finding{Rule: rule, Severity: severity, Path: "a.yml", Message: "msg", Line: 1}
}

func TestConclude(t *testing.T) {
	assert.Equal(t, domain.ConclusionSuccess, lint.Conclude(nil))

	assert.Equal(t, domain.ConclusionNeutral, lint.Conclude([]domain.Finding{
		finding("events", domain.SeverityNit),
		finding("expression", domain.SeverityShould),
	}))

	assert.Equal(t, domain.ConclusionFailure, lint.Conclude([]domain.Finding{
		finding("events", domain.SeverityNit),
		finding("deprecated-commands", domain.SeverityMust),
	}))
}

func TestBuildReport_Empty(t *testing.T) {
	report := lint.BuildReport(nil, domain.LintConfig{Annotations: true, SummaryLimit: 50}, "")

	assert.Equal(t, domain.ConclusionSuccess, report.Conclusion)
	assert.Equal(t, "No issues found", report.Title)
	assert.Empty(t, report.Annotated)
	assert.Zero(t, report.Total)
}

func TestBuildReport_CountsInTitle(t *testing.T) {
	findings := []domain.Finding{
		finding("a", domain.SeverityMust),
		finding("b", domain.SeverityShould),
		finding("c", domain.SeverityShould),
		finding("d", domain.SeverityNit),
	}

	report := lint.BuildReport(findings, domain.LintConfig{Annotations: true, SummaryLimit: 50}, "")

	assert.Equal(t, domain.ConclusionFailure, report.Conclusion)
	assert.Equal(t, "4 findings (1 must, 2 should, 1 nit)", report.Title)
	assert.Len(t, report.Annotated, 4)
}

func TestBuildReport_TruncationDoesNotChangeConclusion(t *testing.T) {
	// The only must-severity finding sits past the annotation limit.
	var findings []domain.Finding
	for i := 0; i < 10; i++ {
		findings = append(findings, finding(fmt.Sprintf("nit-%d", i), domain.SeverityNit))
	}
	findings = append(findings, finding("blocking", domain.SeverityMust))

	report := lint.BuildReport(findings, domain.LintConfig{Annotations: true, SummaryLimit: 5}, "")

	assert.Equal(t, domain.ConclusionFailure, report.Conclusion)
	assert.Equal(t, 11, report.Total)
	require.Len(t, report.Annotated, 5)
	assert.Contains(t, report.Summary, "Showing first 5 annotations of 11 total findings.")
}

func TestBuildReport_NoTruncationNoteWithinLimit(t *testing.T) {
	findings := []domain.Finding{finding("a", domain.SeverityShould)}

	report := lint.BuildReport(findings, domain.LintConfig{Annotations: true, SummaryLimit: 50}, "")

	assert.NotContains(t, report.Summary, "Showing first")
	assert.Len(t, report.Annotated, 1)
}

func TestBuildReport_AnnotationsDisabled(t *testing.T) {
	findings := []domain.Finding{finding("a", domain.SeverityShould)}

	report := lint.BuildReport(findings, domain.LintConfig{Annotations: false, SummaryLimit: 50}, "")

	assert.Empty(t, report.Annotated)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, domain.ConclusionNeutral, report.Conclusion)
}

func TestBuildReport_InjectsDocumentationURLs(t *testing.T) {
	findings := []domain.Finding{
		finding("runner-label", domain.SeverityShould),
		{Rule: domain.RuleFetch, Severity: domain.SeverityShould, Path: "b.yml", Message: "fetch failed"},
		{Rule: "expression", Severity: domain.SeverityShould, Path: "c.yml", Message: "m", DocumentationURL: "https://example.com/custom"},
	}

	report := lint.BuildReport(findings, domain.LintConfig{Annotations: true, SummaryLimit: 50}, "https://flowlint.dev/rules/")

	require.Len(t, report.Annotated, 3)
	assert.Equal(t, "https://flowlint.dev/rules/runner-label", report.Annotated[0].DocumentationURL)
	// Synthetic rules have no documentation page.
	assert.Empty(t, report.Annotated[1].DocumentationURL)
	// Explicit links are preserved.
	assert.Equal(t, "https://example.com/custom", report.Annotated[2].DocumentationURL)
}

func TestNoTargetsReport(t *testing.T) {
	report := lint.NoTargetsReport()

	assert.Equal(t, domain.ConclusionNeutral, report.Conclusion)
	assert.Equal(t, "No relevant files found", report.Title)
	assert.Equal(t, "No workflow files were found to analyze in this pull request.", report.Summary)
}

func TestAnnotationLevel(t *testing.T) {
	assert.Equal(t, "failure", lint.AnnotationLevel(domain.SeverityMust))
	assert.Equal(t, "warning", lint.AnnotationLevel(domain.SeverityShould))
	assert.Equal(t, "notice", lint.AnnotationLevel(domain.SeverityNit))
	assert.Equal(t, "notice", lint.AnnotationLevel(domain.Severity("bogus")))
}
