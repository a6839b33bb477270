// Package review runs one queued pull request job end to end: open a fresh
// check run, lint the changed workflow files, post the verdict, and retire
// older runs on the same commit.
package review

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/replikanti/flowlint/internal/domain"
	"github.com/replikanti/flowlint/internal/lint"
)

// supersedeConcurrency bounds parallel supersession updates so a commit with
// many stale runs cannot flood the API.
const supersedeConcurrency = 4

// CheckReporter is the outbound port for the check-run lifecycle on GitHub.
type CheckReporter interface {
	// DiscoverPrevious lists runs already posted against the job's commit
	// that belong to this service.
	DiscoverPrevious(ctx context.Context, job domain.ReviewJob) ([]domain.PreviousRun, error)

	// OpenRun creates a fresh in-progress run and returns its id.
	OpenRun(ctx context.Context, job domain.ReviewJob) (int64, error)

	// ListChangedFiles returns the pull request's complete change set.
	ListChangedFiles(ctx context.Context, job domain.ReviewJob) ([]domain.ChangedFile, error)

	// FetchBlob returns the decoded content of one changed file.
	FetchBlob(ctx context.Context, job domain.ReviewJob, blobSHA string) ([]byte, error)

	// CompleteRun posts the report and closes the run.
	CompleteRun(ctx context.Context, job domain.ReviewJob, runID int64, report lint.Report) error

	// FailRun closes the run as failed after an orchestration error,
	// carrying the cause in the run's output text.
	FailRun(ctx context.Context, job domain.ReviewJob, runID int64, cause error) error

	// SupersedeRun closes an older run for the same commit as neutral,
	// pointing readers at the run that replaced it.
	SupersedeRun(ctx context.Context, job domain.ReviewJob, previous domain.PreviousRun, newRunID int64) error
}

// RuleEngine is the outbound port for linting one workflow file.
// A non-nil error means the file could not be parsed at all.
type RuleEngine interface {
	Evaluate(path string, content []byte, cfg domain.LintConfig) ([]domain.Finding, error)
}

// ConfigLoader resolves the per-repository lint configuration at a ref.
type ConfigLoader interface {
	Load(ctx context.Context, installationID int64, repo domain.Repo, ref string) (domain.LintConfig, error)
}

// OrchestratorDeps wires the orchestrator's collaborators.
type OrchestratorDeps struct {
	Checks CheckReporter
	Engine RuleEngine
	Config ConfigLoader
	Logger Logger // Optional: structured logging

	// DocsBaseURL prefixes the per-rule documentation links rendered into
	// annotations. Empty disables the links.
	DocsBaseURL string
}

// Orchestrator processes review jobs.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator wires the orchestrator dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// validateDependencies checks that all required dependencies are present.
func (o *Orchestrator) validateDependencies() error {
	if o.deps.Checks == nil {
		return errors.New("check reporter is required")
	}
	if o.deps.Engine == nil {
		return errors.New("rule engine is required")
	}
	if o.deps.Config == nil {
		return errors.New("config loader is required")
	}
	// Logger is optional
	return nil
}

// Process runs one job to completion. A returned error means the job did not
// produce a completed check run and should be redelivered; every terminal
// verdict, including "nothing to analyze", returns nil.
//
// The commit under review is pinned by the job: every fetch uses the job's
// head SHA, so a branch that moves mid-job cannot mix two commits into one
// report.
func (o *Orchestrator) Process(ctx context.Context, job domain.ReviewJob) error {
	if err := o.validateDependencies(); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	// Discovery happens before the new run exists, so everything found here
	// is a candidate for supersession. Discovery failure fails the job:
	// silently missing prior runs would let stale verdicts linger on the
	// commit.
	previous, err := o.deps.Checks.DiscoverPrevious(ctx, job)
	if err != nil {
		return err
	}

	runID, err := o.deps.Checks.OpenRun(ctx, job)
	if err != nil {
		return err
	}

	o.logInfo(ctx, "opened check run", map[string]interface{}{
		"job":          job.IdempotencyKey(),
		"check_run_id": runID,
	})

	report, err := o.analyze(ctx, job)
	if err == nil {
		err = o.deps.Checks.CompleteRun(ctx, job, runID, report)
	}
	if err != nil {
		// Best effort: the open run must not dangle in_progress forever.
		// The original error is what the caller retries on.
		if failErr := o.deps.Checks.FailRun(ctx, job, runID, err); failErr != nil {
			o.logWarning(ctx, "failed to mark check run as failed", map[string]interface{}{
				"job":          job.IdempotencyKey(),
				"check_run_id": runID,
				"error":        failErr.Error(),
			})
		}
		return err
	}

	o.logInfo(ctx, "completed check run", map[string]interface{}{
		"job":          job.IdempotencyKey(),
		"check_run_id": runID,
		"conclusion":   string(report.Conclusion),
		"findings":     report.Total,
	})

	o.supersede(ctx, job, previous, runID)
	return nil
}

// analyze produces the report for the job's commit: load the repository's
// lint configuration, select targets, lint each one, and fold the results.
// Per-file failures become synthetic findings; only failures that prevent
// knowing the change set at all surface as errors.
func (o *Orchestrator) analyze(ctx context.Context, job domain.ReviewJob) (lint.Report, error) {
	cfg, err := o.deps.Config.Load(ctx, job.InstallationID, job.Repo, job.SHA)
	if err != nil {
		return lint.Report{}, err
	}

	files, err := o.deps.Checks.ListChangedFiles(ctx, job)
	if err != nil {
		return lint.Report{}, err
	}

	targets := pickTargets(files, cfg)
	if len(targets) == 0 {
		return lint.NoTargetsReport(), nil
	}

	var fetchErrors []lint.FetchError
	perFile := make([][]domain.Finding, 0, len(targets))
	for _, target := range targets {
		content, err := o.deps.Checks.FetchBlob(ctx, job, target.BlobSHA)
		if err != nil {
			o.logWarning(ctx, "failed to fetch target file", map[string]interface{}{
				"job":   job.IdempotencyKey(),
				"path":  target.Path,
				"error": err.Error(),
			})
			fetchErrors = append(fetchErrors, lint.FetchError{Path: target.Path, Message: err.Error()})
			continue
		}

		findings, err := o.deps.Engine.Evaluate(target.Path, content, cfg)
		if err != nil {
			perFile = append(perFile, []domain.Finding{lint.ParseFailure(target.Path, err)})
			continue
		}
		perFile = append(perFile, findings)
	}

	all := lint.Aggregate(fetchErrors, perFile)
	return lint.BuildReport(all, cfg, o.deps.DocsBaseURL), nil
}

// supersede retires older runs on the same commit. Failures here never fail
// the job: the new run is already completed and authoritative.
func (o *Orchestrator) supersede(ctx context.Context, job domain.ReviewJob, previous []domain.PreviousRun, newRunID int64) {
	var g errgroup.Group
	g.SetLimit(supersedeConcurrency)

	for _, prev := range previous {
		if prev.ID == newRunID {
			continue
		}
		prev := prev
		g.Go(func() error {
			if err := o.deps.Checks.SupersedeRun(ctx, job, prev, newRunID); err != nil {
				o.logWarning(ctx, "failed to supersede previous check run", map[string]interface{}{
					"job":          job.IdempotencyKey(),
					"check_run_id": prev.ID,
					"error":        err.Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) logInfo(ctx context.Context, message string, fields map[string]interface{}) {
	if o.deps.Logger != nil {
		o.deps.Logger.LogInfo(ctx, message, fields)
	}
}

func (o *Orchestrator) logWarning(ctx context.Context, message string, fields map[string]interface{}) {
	if o.deps.Logger != nil {
		o.deps.Logger.LogWarning(ctx, message, fields)
	}
}
