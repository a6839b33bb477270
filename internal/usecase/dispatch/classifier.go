// Package dispatch maps raw GitHub webhook deliveries onto review jobs.
//
// Classification is the only place that touches webhook JSON: payloads are
// decoded into typed per-event structs and validated here, so nothing
// downstream ever reaches into loosely-typed maps.
package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/replikanti/flowlint/internal/domain"
)

// Decision states what should happen to a delivery.
type Decision int

const (
	// DecisionIgnored acknowledges an event this service deliberately does
	// not act on (unlisted event type or action).
	DecisionIgnored Decision = iota

	// DecisionSoftRejected acknowledges an event that matched but cannot be
	// actioned (missing installation id, no attached pull requests). The
	// delivery is not retried.
	DecisionSoftRejected

	// DecisionAccepted produced one or more jobs.
	DecisionAccepted
)

// Outcome is the classifier's verdict for one delivery.
type Outcome struct {
	Decision Decision
	Jobs     []domain.ReviewJob

	// Reason explains ignored and soft-rejected outcomes.
	Reason string
}

// Classifier derives review jobs from webhook deliveries.
type Classifier struct {
	checkName string
	appSlug   string
}

// NewClassifier builds a classifier that matches prior check runs against
// the configured check name or the App's registered slug.
func NewClassifier(checkName, appSlug string) *Classifier {
	return &Classifier{checkName: checkName, appSlug: appSlug}
}

// Classify inspects one delivery and produces zero or more jobs.
// A returned error means the payload was malformed for its declared event
// type; everything else is expressed through the Outcome.
func (c *Classifier) Classify(eventType string, payload []byte) (Outcome, error) {
	switch eventType {
	case "pull_request":
		return c.classifyPullRequest(payload)
	case "check_suite":
		return c.classifyCheckSuite(payload)
	case "check_run":
		return c.classifyCheckRun(payload)
	default:
		return Outcome{Decision: DecisionIgnored, Reason: fmt.Sprintf("event %q not handled", eventType)}, nil
	}
}

// Webhook payload shapes. Only the fields this service reads are declared;
// each event type gets its own struct so required fields are validated at
// this boundary.

type installationRef struct {
	ID int64 `json:"id"`
}

type repositoryRef struct {
	FullName string `json:"full_name"`
}

type branchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type pullRequestEvent struct {
	Action       string           `json:"action"`
	Installation *installationRef `json:"installation"`
	Repository   repositoryRef    `json:"repository"`
	PullRequest  struct {
		Number int       `json:"number"`
		Head   branchRef `json:"head"`
	} `json:"pull_request"`
}

type attachedPR struct {
	Number int       `json:"number"`
	Head   branchRef `json:"head"`
}

type suiteCheckRun struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	HeadSHA string `json:"head_sha"`
	App     struct {
		Slug string `json:"slug"`
	} `json:"app"`
}

type checkSuiteEvent struct {
	Action       string           `json:"action"`
	Installation *installationRef `json:"installation"`
	Repository   repositoryRef    `json:"repository"`
	CheckSuite   struct {
		ID           int64           `json:"id"`
		HeadSHA      string          `json:"head_sha"`
		PullRequests []attachedPR    `json:"pull_requests"`
		LatestRuns   []suiteCheckRun `json:"latest_check_runs"`
		CheckRuns    []suiteCheckRun `json:"check_runs"`
	} `json:"check_suite"`
}

type checkRunEvent struct {
	Action       string           `json:"action"`
	Installation *installationRef `json:"installation"`
	Repository   repositoryRef    `json:"repository"`
	CheckRun     struct {
		ID         int64  `json:"id"`
		HeadSHA    string `json:"head_sha"`
		HeadBranch string `json:"head_branch"`
		CheckSuite struct {
			ID           int64        `json:"id"`
			PullRequests []attachedPR `json:"pull_requests"`
		} `json:"check_suite"`
	} `json:"check_run"`
}

func (c *Classifier) classifyPullRequest(payload []byte) (Outcome, error) {
	var event pullRequestEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return Outcome{}, fmt.Errorf("malformed pull_request payload: %w", err)
	}

	switch event.Action {
	case "opened", "synchronize", "ready_for_review":
	default:
		return ignoredAction("pull_request", event.Action), nil
	}

	if event.Installation == nil || event.Installation.ID == 0 {
		return softRejected("missing installation id"), nil
	}

	repo, err := domain.ParseRepo(event.Repository.FullName)
	if err != nil {
		return Outcome{}, fmt.Errorf("malformed pull_request payload: %w", err)
	}
	if event.PullRequest.Number <= 0 || event.PullRequest.Head.SHA == "" {
		return Outcome{}, fmt.Errorf("malformed pull_request payload: missing pull request number or head sha")
	}

	return Outcome{
		Decision: DecisionAccepted,
		Jobs: []domain.ReviewJob{{
			InstallationID: event.Installation.ID,
			Repo:           repo,
			PRNumber:       event.PullRequest.Number,
			SHA:            event.PullRequest.Head.SHA,
			HeadBranch:     event.PullRequest.Head.Ref,
		}},
	}, nil
}

func (c *Classifier) classifyCheckSuite(payload []byte) (Outcome, error) {
	var event checkSuiteEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return Outcome{}, fmt.Errorf("malformed check_suite payload: %w", err)
	}

	switch event.Action {
	case "requested", "rerequested":
	default:
		return ignoredAction("check_suite", event.Action), nil
	}

	if event.Installation == nil || event.Installation.ID == 0 {
		return softRejected("missing installation id"), nil
	}

	suite := event.CheckSuite
	if suite.HeadSHA == "" || len(suite.PullRequests) == 0 {
		return softRejected("no pull requests attached to check suite"), nil
	}

	repo, err := domain.ParseRepo(event.Repository.FullName)
	if err != nil {
		return Outcome{}, fmt.Errorf("malformed check_suite payload: %w", err)
	}

	// Some deliveries carry the runs under latest_check_runs, older ones
	// under check_runs.
	runs := suite.LatestRuns
	if len(runs) == 0 {
		runs = suite.CheckRuns
	}

	jobs := make([]domain.ReviewJob, 0, len(suite.PullRequests))
	for _, pr := range suite.PullRequests {
		if pr.Number <= 0 {
			continue
		}
		jobs = append(jobs, domain.ReviewJob{
			InstallationID: event.Installation.ID,
			Repo:           repo,
			PRNumber:       pr.Number,
			SHA:            suite.HeadSHA,
			HeadBranch:     pr.Head.Ref,
			CheckRunID:     c.matchPriorRun(runs, suite.HeadSHA),
			CheckSuiteID:   suite.ID,
		})
	}
	if len(jobs) == 0 {
		return softRejected("no pull requests attached to check suite"), nil
	}

	return Outcome{Decision: DecisionAccepted, Jobs: jobs}, nil
}

func (c *Classifier) classifyCheckRun(payload []byte) (Outcome, error) {
	var event checkRunEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return Outcome{}, fmt.Errorf("malformed check_run payload: %w", err)
	}

	switch event.Action {
	case "rerequested", "requested_action":
	default:
		return ignoredAction("check_run", event.Action), nil
	}

	if event.Installation == nil || event.Installation.ID == 0 {
		return softRejected("missing installation id"), nil
	}

	run := event.CheckRun
	if run.HeadSHA == "" || len(run.CheckSuite.PullRequests) == 0 {
		return softRejected("missing pull request info for check run"), nil
	}

	repo, err := domain.ParseRepo(event.Repository.FullName)
	if err != nil {
		return Outcome{}, fmt.Errorf("malformed check_run payload: %w", err)
	}

	pr := run.CheckSuite.PullRequests[0]
	headBranch := pr.Head.Ref
	if headBranch == "" {
		headBranch = run.HeadBranch
	}

	return Outcome{
		Decision: DecisionAccepted,
		Jobs: []domain.ReviewJob{{
			InstallationID: event.Installation.ID,
			Repo:           repo,
			PRNumber:       pr.Number,
			SHA:            run.HeadSHA,
			HeadBranch:     headBranch,
			CheckRunID:     run.ID,
			CheckSuiteID:   run.CheckSuite.ID,
		}},
	}, nil
}

// matchPriorRun finds a run on the suite's head commit that belongs to this
// service, matched by the configured check name or by the App's registered
// slug. The two clauses are different trust signals: the name is operator
// configuration, the slug is the App's registered identity. The matched id
// is informational only; the orchestrator always opens a fresh run.
func (c *Classifier) matchPriorRun(runs []suiteCheckRun, headSHA string) int64 {
	for _, run := range runs {
		if run.HeadSHA != headSHA {
			continue
		}
		if run.Name == c.checkName || run.App.Slug == c.appSlug {
			return run.ID
		}
	}
	return 0
}

func ignoredAction(event, action string) Outcome {
	return Outcome{
		Decision: DecisionIgnored,
		Reason:   fmt.Sprintf("%s action %q not handled", event, action),
	}
}

func softRejected(reason string) Outcome {
	return Outcome{Decision: DecisionSoftRejected, Reason: reason}
}
