package actionlint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikanti/flowlint/internal/domain"
)

const validWorkflow = `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: go test ./...
`

const brokenWorkflow = `on: push
jobs:
  build:
	runs-on: ubuntu-latest
`

func TestEngine_Evaluate_ValidWorkflow(t *testing.T) {
	engine := NewEngine()

	findings, err := engine.Evaluate(".github/workflows/ci.yml", []byte(validWorkflow), domain.LintConfig{})

	require.NoError(t, err)
	for _, f := range findings {
		assert.Equal(t, ".github/workflows/ci.yml", f.Path)
		assert.NotEmpty(t, f.Rule)
	}
}

func TestEngine_Evaluate_UnparseableWorkflow(t *testing.T) {
	engine := NewEngine()

	findings, err := engine.Evaluate(".github/workflows/ci.yml", []byte(brokenWorkflow), domain.LintConfig{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), ".github/workflows/ci.yml")
	// No partial results alongside an error.
	assert.Empty(t, findings)
}

func TestEngine_Evaluate_ReportsFindingsWithPositions(t *testing.T) {
	// An expression referencing an undefined context property.
	workflow := `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo "${{ github.event.pull_request.nope.title }}"
`
	engine := NewEngine()

	findings, err := engine.Evaluate(".github/workflows/ci.yml", []byte(workflow), domain.LintConfig{})

	require.NoError(t, err)
	require.NotEmpty(t, findings)
	for _, f := range findings {
		assert.Greater(t, f.Line, 0)
		assert.Equal(t, domain.SeverityShould, f.Severity)
	}
}

func TestEngine_SeverityOverrides(t *testing.T) {
	engine := NewEngine()

	cfg := domain.LintConfig{RuleSeverity: map[string]string{
		"expression":  "must",
		"events":      "NIT",
		"shell-check": "bogus",
	}}

	assert.Equal(t, domain.SeverityMust, engine.severityFor("expression", cfg))
	assert.Equal(t, domain.SeverityNit, engine.severityFor("events", cfg))
	// Unknown override values and unlisted rules fall back to advisory.
	assert.Equal(t, domain.SeverityShould, engine.severityFor("shell-check", cfg))
	assert.Equal(t, domain.SeverityShould, engine.severityFor("runner-label", cfg))
}
