package ghapp

// GitHub Checks and Pulls API types consumed by the orchestrator.
// See: https://docs.github.com/en/rest/checks/runs

// CheckRunStatus is the lifecycle state of a check run.
type CheckRunStatus string

const (
	StatusQueued     CheckRunStatus = "queued"
	StatusInProgress CheckRunStatus = "in_progress"
	StatusCompleted  CheckRunStatus = "completed"
)

// CreateCheckRunRequest is the body for POST /repos/{owner}/{repo}/check-runs.
type CreateCheckRunRequest struct {
	Name         string         `json:"name"`
	HeadSHA      string         `json:"head_sha"`
	Status       CheckRunStatus `json:"status,omitempty"`
	StartedAt    string         `json:"started_at,omitempty"`
	CheckSuiteID int64          `json:"check_suite_id,omitempty"`
}

// UpdateCheckRunRequest is the body for PATCH /repos/{owner}/{repo}/check-runs/{id}.
type UpdateCheckRunRequest struct {
	Status      CheckRunStatus `json:"status,omitempty"`
	Conclusion  string         `json:"conclusion,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Output      *CheckOutput   `json:"output,omitempty"`
}

// CheckOutput is the rendered body of a check run.
type CheckOutput struct {
	Title       string       `json:"title"`
	Summary     string       `json:"summary"`
	Text        string       `json:"text,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation is a per-line comment rendered inline on the diff.
type Annotation struct {
	Path            string `json:"path"`
	StartLine       int    `json:"start_line"`
	EndLine         int    `json:"end_line"`
	AnnotationLevel string `json:"annotation_level"` // notice, warning, failure
	Message         string `json:"message"`
	Title           string `json:"title,omitempty"`
	RawDetails      string `json:"raw_details,omitempty"`
}

// CheckRun is a check run resource as returned by the API.
type CheckRun struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	HeadSHA    string         `json:"head_sha"`
	Status     CheckRunStatus `json:"status"`
	Conclusion string         `json:"conclusion"`
	HTMLURL    string         `json:"html_url"`
	App        struct {
		Slug string `json:"slug"`
	} `json:"app"`
}

// listCheckRunsResponse is the envelope of GET /commits/{ref}/check-runs.
type listCheckRunsResponse struct {
	TotalCount int        `json:"total_count"`
	CheckRuns  []CheckRun `json:"check_runs"`
}

// PRFile is one entry of GET /pulls/{number}/files.
type PRFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"` // added, modified, removed, renamed, ...
	SHA      string `json:"sha"`    // blob sha; empty for removed files
}

// blobResponse is GET /git/blobs/{sha}.
type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// contentsResponse is GET /contents/{path} for a file.
type contentsResponse struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// installationTokenResponse is POST /app/installations/{id}/access_tokens.
type installationTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// errorResponse represents an error response from the GitHub API.
type errorResponse struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
	Errors           []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
		Message  string `json:"message"`
	} `json:"errors,omitempty"`
}
