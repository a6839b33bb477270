package domain

// Severity classifies how strongly a finding blocks a pull request.
// Ordering: must > should > nit.
type Severity string

const (
	SeverityMust   Severity = "must"
	SeverityShould Severity = "should"
	SeverityNit    Severity = "nit"
)

// Rank returns the blocking weight of a severity; higher blocks harder.
// Unknown severities rank below nit so a misbehaving engine cannot
// accidentally fail a check.
func (s Severity) Rank() int {
	switch s {
	case SeverityMust:
		return 3
	case SeverityShould:
		return 2
	case SeverityNit:
		return 1
	default:
		return 0
	}
}

// Synthetic rule identifiers for infrastructure failures that are reported
// as findings instead of failing the job.
const (
	RuleFetch = "FETCH"
	RuleParse = "PARSE"
)

// MaxRawDetails bounds the raw_details field of a finding. The check-run
// API rejects oversized payloads; stack traces and validation dumps get
// truncated to this many bytes.
const MaxRawDetails = 64000

// Finding is one lint observation or synthetic error attached to a file in
// the pull request.
type Finding struct {
	Rule             string   `json:"rule"`
	Severity         Severity `json:"severity"`
	Path             string   `json:"path"`
	Message          string   `json:"message"`
	Line             int      `json:"line,omitempty"`
	RawDetails       string   `json:"raw_details,omitempty"`
	DocumentationURL string   `json:"documentationUrl,omitempty"`
}

// Conclusion is the terminal verdict of a check run. Only the three values
// this service produces are listed; GitHub accepts more.
type Conclusion string

const (
	ConclusionSuccess Conclusion = "success"
	ConclusionNeutral Conclusion = "neutral"
	ConclusionFailure Conclusion = "failure"
)

// LintConfig is the per-repository lint configuration, either loaded from
// the repo at the job's commit or defaulted.
type LintConfig struct {
	IncludeGlobs []string          `yaml:"include"`
	IgnoreGlobs  []string          `yaml:"ignore"`
	SummaryLimit int               `yaml:"summary_limit"`
	Annotations  bool              `yaml:"annotations"`
	RuleSeverity map[string]string `yaml:"rule_severity"`
}
