package domain

import (
	"fmt"
	"strings"
)

// Repo identifies a GitHub repository by owner and name.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns the owner/name form used by the GitHub API and webhooks.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo splits an owner/name pair as delivered in webhook payloads.
func ParseRepo(fullName string) (Repo, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return Repo{}, fmt.Errorf("malformed repository full name %q", fullName)
	}
	return Repo{Owner: owner, Name: name}, nil
}

// ReviewJob is the canonical unit of work produced by the event classifier
// and consumed by the check-run orchestrator. Jobs are immutable after
// creation; delivery is at-least-once, so everything downstream of a job
// must be idempotent.
type ReviewJob struct {
	InstallationID int64  `json:"installationId"`
	Repo           Repo   `json:"repo"`
	PRNumber       int    `json:"prNumber"`
	SHA            string `json:"sha"`
	HeadBranch     string `json:"headBranch,omitempty"`

	// CheckRunID is a best-effort match of a prior run for the same commit,
	// carried for logging and wire compatibility only. The orchestrator
	// always opens a fresh run and never reuses this id.
	CheckRunID int64 `json:"checkRunId,omitempty"`

	// CheckSuiteID links the new run to the suite that triggered it.
	CheckSuiteID int64 `json:"checkSuiteId,omitempty"`
}

// IdempotencyKey derives the deterministic dedup key for the job.
// Two webhooks describing the same commit of the same pull request must
// collapse into one queued entry regardless of which event produced them.
func (j ReviewJob) IdempotencyKey() string {
	return fmt.Sprintf("%s#%d@%s", j.Repo.FullName(), j.PRNumber, j.SHA)
}

// ShortSHA returns the abbreviated commit hash used in log fields.
func (j ReviewJob) ShortSHA() string {
	if len(j.SHA) <= 7 {
		return j.SHA
	}
	return j.SHA[:7]
}

// Validate checks the fields the orchestrator cannot work without.
func (j ReviewJob) Validate() error {
	if j.InstallationID == 0 {
		return fmt.Errorf("job %s: missing installation id", j.IdempotencyKey())
	}
	if j.Repo.Owner == "" || j.Repo.Name == "" {
		return fmt.Errorf("job: missing repository")
	}
	if j.PRNumber <= 0 {
		return fmt.Errorf("job %s: missing pull request number", j.IdempotencyKey())
	}
	if j.SHA == "" {
		return fmt.Errorf("job: missing head sha")
	}
	return nil
}

// PreviousRun describes a check run already posted against the job's commit
// under this app's check name. Read-only input to the supersession step.
type PreviousRun struct {
	ID      int64
	Name    string
	HeadSHA string
	AppSlug string
}

// ChangedFile is one file of the pull request's change set.
type ChangedFile struct {
	Path string

	// Status is the change kind reported by GitHub: added, modified,
	// removed, renamed. Removed files have no content to analyze.
	Status string

	// BlobSHA addresses the file's content in the Git object store.
	BlobSHA string
}
