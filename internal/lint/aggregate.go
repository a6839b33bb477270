// Package lint folds per-file lint outcomes into one ordered findings list
// and renders the check-run verdict from it. Everything here is pure
// computation; I/O stays in the orchestrator.
package lint

import (
	"fmt"

	"github.com/replikanti/flowlint/internal/domain"
)

// FetchError records a file whose content could not be retrieved.
type FetchError struct {
	Path    string
	Message string
}

// fetchAdvisory explains the likely causes of a blob fetch failure to the
// person reading the check run.
const fetchAdvisory = "This may be due to a force-push, deleted file, or temporary GitHub API issue. Try re-running the check."

// Aggregate concatenates heterogeneous outcomes into one ordered findings
// list: fetch failures first, then per-file findings in file-list order,
// preserving engine order within each file. Oversized raw_details are capped
// on every finding.
func Aggregate(fetchErrors []FetchError, perFile [][]domain.Finding) []domain.Finding {
	total := len(fetchErrors)
	for _, findings := range perFile {
		total += len(findings)
	}

	out := make([]domain.Finding, 0, total)
	for _, fe := range fetchErrors {
		out = append(out, domain.Finding{
			Rule:       domain.RuleFetch,
			Severity:   domain.SeverityShould,
			Path:       fe.Path,
			Message:    fmt.Sprintf("Failed to fetch file: %s", fe.Message),
			RawDetails: fetchAdvisory,
		})
	}
	for _, findings := range perFile {
		out = append(out, findings...)
	}

	for i := range out {
		out[i].RawDetails = capRawDetails(out[i].RawDetails)
	}
	return out
}

// ParseFailure synthesizes the finding reported when a fetched file cannot
// be parsed or validated. One malformed file must never abort the job.
func ParseFailure(path string, err error) domain.Finding {
	return domain.Finding{
		Rule:       domain.RuleParse,
		Severity:   domain.SeverityMust,
		Path:       path,
		Message:    err.Error(),
		Line:       1,
		RawDetails: capRawDetails(fmt.Sprintf("%+v", err)),
	}
}

func capRawDetails(details string) string {
	if len(details) <= domain.MaxRawDetails {
		return details
	}
	return details[:domain.MaxRawDetails]
}
