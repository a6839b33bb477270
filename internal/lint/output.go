package lint

import (
	"fmt"
	"strings"

	"github.com/replikanti/flowlint/internal/domain"
)

// Report is the rendered verdict for a completed analysis: the conclusion,
// the human-readable title and summary, and the subset of findings that will
// be posted as inline annotations.
type Report struct {
	Conclusion domain.Conclusion
	Title      string
	Summary    string

	// Annotated is the prefix of findings shown inline, bounded by the
	// repository's summary limit. Total counts every finding, so the
	// conclusion never depends on how many annotations fit.
	Annotated []domain.Finding
	Total     int
}

// Conclude derives the check-run conclusion from the complete findings list:
// failure when anything blocks the merge, neutral when only advisory findings
// exist, success when the list is empty.
func Conclude(findings []domain.Finding) domain.Conclusion {
	if len(findings) == 0 {
		return domain.ConclusionSuccess
	}
	for _, f := range findings {
		if f.Severity == domain.SeverityMust {
			return domain.ConclusionFailure
		}
	}
	return domain.ConclusionNeutral
}

// BuildReport renders the verdict for the complete findings list. The
// conclusion is computed before any truncation so a must-severity finding
// past the annotation limit still fails the check. When docsBaseURL is set,
// findings without an explicit documentation link get one derived from their
// rule id.
func BuildReport(findings []domain.Finding, cfg domain.LintConfig, docsBaseURL string) Report {
	if docsBaseURL != "" {
		for i := range findings {
			if findings[i].DocumentationURL == "" && !isSyntheticRule(findings[i].Rule) {
				findings[i].DocumentationURL = fmt.Sprintf("%s/%s", strings.TrimRight(docsBaseURL, "/"), strings.ToLower(findings[i].Rule))
			}
		}
	}

	report := Report{
		Conclusion: Conclude(findings),
		Total:      len(findings),
	}

	var musts, shoulds, nits int
	for _, f := range findings {
		switch f.Severity {
		case domain.SeverityMust:
			musts++
		case domain.SeverityShould:
			shoulds++
		default:
			nits++
		}
	}

	if report.Total == 0 {
		report.Title = "No issues found"
		report.Summary = "All analyzed workflow files passed."
		return report
	}

	report.Title = fmt.Sprintf("%d %s (%d must, %d should, %d nit)",
		report.Total, pluralize("finding", report.Total), musts, shoulds, nits)

	var b strings.Builder
	switch report.Conclusion {
	case domain.ConclusionFailure:
		b.WriteString("Blocking issues were found in the changed workflow files.\n\n")
	default:
		b.WriteString("Advisory issues were found in the changed workflow files.\n\n")
	}
	fmt.Fprintf(&b, "| Severity | Count |\n|---|---|\n| must | %d |\n| should | %d |\n| nit | %d |\n", musts, shoulds, nits)

	if cfg.Annotations {
		report.Annotated = findings
		if cfg.SummaryLimit > 0 && len(findings) > cfg.SummaryLimit {
			report.Annotated = findings[:cfg.SummaryLimit]
			fmt.Fprintf(&b, "\nShowing first %d annotations of %d total findings.", cfg.SummaryLimit, report.Total)
		}
	}

	report.Summary = b.String()
	return report
}

// NoTargetsReport is the terminal verdict when the pull request changed no
// files the lint configuration selects. Neutral, not success: nothing was
// analyzed, so nothing was approved.
func NoTargetsReport() Report {
	return Report{
		Conclusion: domain.ConclusionNeutral,
		Title:      "No relevant files found",
		Summary:    "No workflow files were found to analyze in this pull request.",
	}
}

// AnnotationLevel maps a finding severity onto the check-run annotation
// levels GitHub renders.
func AnnotationLevel(severity domain.Severity) string {
	switch severity {
	case domain.SeverityMust:
		return "failure"
	case domain.SeverityShould:
		return "warning"
	default:
		return "notice"
	}
}

func isSyntheticRule(rule string) bool {
	return rule == domain.RuleFetch || rule == domain.RuleParse
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
