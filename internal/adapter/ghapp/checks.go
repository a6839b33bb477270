package ghapp

import (
	"context"
	"fmt"
	"time"

	"github.com/replikanti/flowlint/internal/domain"
	"github.com/replikanti/flowlint/internal/lint"
)

// Check-run wording for the outcomes that are not rendered from findings.
const (
	failureTitle   = "FlowLint analysis failed"
	failureSummary = "An unexpected error occurred while running the analysis."

	supersededTitle         = "Superseded by newer FlowLint run"
	supersededSummaryFormat = "This run has been replaced by FlowLint check %d. See the latest run for up-to-date findings."
)

// CheckService presents the check-run lifecycle to the orchestrator: one
// method per state transition, with all API shapes and wording kept here.
type CheckService struct {
	client    *Client
	checkName string
	appSlug   string
	now       func() time.Time
}

// NewCheckService creates the check-run gateway for the given check name and
// App slug.
func NewCheckService(client *Client, checkName, appSlug string) *CheckService {
	return &CheckService{
		client:    client,
		checkName: checkName,
		appSlug:   appSlug,
		now:       time.Now,
	}
}

// DiscoverPrevious lists the runs already posted against the job's commit
// that belong to this service, matched by check name or App slug.
func (s *CheckService) DiscoverPrevious(ctx context.Context, job domain.ReviewJob) ([]domain.PreviousRun, error) {
	runs, err := s.client.ListCheckRuns(ctx, job.InstallationID, job.Repo, job.SHA)
	if err != nil {
		return nil, err
	}

	var previous []domain.PreviousRun
	for _, run := range runs {
		if run.Name != s.checkName && run.App.Slug != s.appSlug {
			continue
		}
		previous = append(previous, domain.PreviousRun{
			ID:      run.ID,
			Name:    run.Name,
			HeadSHA: run.HeadSHA,
			AppSlug: run.App.Slug,
		})
	}
	return previous, nil
}

// OpenRun creates a fresh in-progress check run for the job and returns its id.
func (s *CheckService) OpenRun(ctx context.Context, job domain.ReviewJob) (int64, error) {
	run, err := s.client.CreateCheckRun(ctx, job.InstallationID, job.Repo, CreateCheckRunRequest{
		Name:         s.checkName,
		HeadSHA:      job.SHA,
		Status:       StatusInProgress,
		StartedAt:    s.now().UTC().Format(time.RFC3339),
		CheckSuiteID: job.CheckSuiteID,
	})
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

// ListChangedFiles returns the pull request's complete change set.
func (s *CheckService) ListChangedFiles(ctx context.Context, job domain.ReviewJob) ([]domain.ChangedFile, error) {
	files, err := s.client.ListPullFiles(ctx, job.InstallationID, job.Repo, job.PRNumber)
	if err != nil {
		return nil, err
	}

	changed := make([]domain.ChangedFile, 0, len(files))
	for _, f := range files {
		changed = append(changed, domain.ChangedFile{
			Path:    f.Filename,
			Status:  f.Status,
			BlobSHA: f.SHA,
		})
	}
	return changed, nil
}

// FetchBlob returns the decoded content of one changed file.
func (s *CheckService) FetchBlob(ctx context.Context, job domain.ReviewJob, blobSHA string) ([]byte, error) {
	return s.client.GetBlob(ctx, job.InstallationID, job.Repo, blobSHA)
}

// CompleteRun posts the report and closes the run in a single update. The
// annotation list is already bounded by the summary limit; the conclusion
// and the annotations must land atomically so the run never reads as
// completed with its annotations missing.
func (s *CheckService) CompleteRun(ctx context.Context, job domain.ReviewJob, runID int64, report lint.Report) error {
	return s.client.UpdateCheckRun(ctx, job.InstallationID, job.Repo, runID, UpdateCheckRunRequest{
		Status:      StatusCompleted,
		Conclusion:  string(report.Conclusion),
		CompletedAt: s.now().UTC().Format(time.RFC3339),
		Output: &CheckOutput{
			Title:       report.Title,
			Summary:     report.Summary,
			Annotations: toAnnotations(report.Annotated),
		},
	})
}

// FailRun closes the run as failed after an unrecoverable orchestration
// error, carrying the error detail in the output text.
func (s *CheckService) FailRun(ctx context.Context, job domain.ReviewJob, runID int64, cause error) error {
	var detail string
	if cause != nil {
		detail = cause.Error()
		if len(detail) > domain.MaxRawDetails {
			detail = detail[:domain.MaxRawDetails]
		}
	}
	return s.client.UpdateCheckRun(ctx, job.InstallationID, job.Repo, runID, UpdateCheckRunRequest{
		Status:      StatusCompleted,
		Conclusion:  string(domain.ConclusionFailure),
		CompletedAt: s.now().UTC().Format(time.RFC3339),
		Output: &CheckOutput{
			Title:   failureTitle,
			Summary: failureSummary,
			Text:    detail,
		},
	})
}

// SupersedeRun closes an older run for the same commit as neutral so the new
// run is the only one that reads as authoritative.
func (s *CheckService) SupersedeRun(ctx context.Context, job domain.ReviewJob, previous domain.PreviousRun, newRunID int64) error {
	return s.client.UpdateCheckRun(ctx, job.InstallationID, job.Repo, previous.ID, UpdateCheckRunRequest{
		Status:      StatusCompleted,
		Conclusion:  string(domain.ConclusionNeutral),
		CompletedAt: s.now().UTC().Format(time.RFC3339),
		Output: &CheckOutput{
			Title:   supersededTitle,
			Summary: fmt.Sprintf(supersededSummaryFormat, newRunID),
		},
	})
}

func toAnnotations(findings []domain.Finding) []Annotation {
	if len(findings) == 0 {
		return nil
	}
	annotations := make([]Annotation, 0, len(findings))
	for _, f := range findings {
		line := f.Line
		if line <= 0 {
			line = 1
		}
		message := f.Message
		if f.DocumentationURL != "" {
			message += "\n\n" + f.DocumentationURL
		}
		annotations = append(annotations, Annotation{
			Path:            f.Path,
			StartLine:       line,
			EndLine:         line,
			AnnotationLevel: lint.AnnotationLevel(f.Severity),
			Message:         message,
			Title:           f.Rule,
			RawDetails:      f.RawDetails,
		})
	}
	return annotations
}
