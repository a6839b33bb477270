package ghapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/replikanti/flowlint/internal/adapter/rest"
	"github.com/replikanti/flowlint/internal/domain"
)

const (
	defaultBaseURL        = "https://api.github.com"
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second

	// filesPerPage is the page size for PR file listing; 100 is the API maximum.
	filesPerPage = 100
)

// TokenSource provides an installation access token for a given installation.
type TokenSource interface {
	InstallationToken(ctx context.Context, installationID int64) (string, error)
}

// Client is an HTTP client for the GitHub Checks, Pulls and Git Data APIs,
// authenticated per-installation through a TokenSource.
type Client struct {
	tokens     TokenSource
	baseURL    string
	httpClient *http.Client
	retryConf  rest.RetryConfig
	logger     rest.CallLogger
}

// NewClient creates a new GitHub API client backed by the given token source.
func NewClient(tokens TokenSource) *Client {
	return &Client{
		tokens:     tokens,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf: rest.RetryConfig{
			MaxRetries:     defaultMaxRetries,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     32 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// SetBaseURL sets a custom base URL (for testing or GitHub Enterprise).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// SetTimeout sets the HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetRetryConfig overrides the retry policy.
func (c *Client) SetRetryConfig(conf rest.RetryConfig) {
	c.retryConf = conf
}

// SetLogger enables per-attempt call logging.
func (c *Client) SetLogger(logger rest.CallLogger) {
	c.logger = logger
}

func (c *Client) logCall(ctx context.Context, method, url string, status, attempt int, start time.Time, err error) {
	if c.logger == nil {
		return
	}
	c.logger.LogCall(ctx, rest.CallLog{
		Service:    serviceName,
		Method:     method,
		URL:        url,
		StatusCode: status,
		Duration:   time.Since(start),
		Attempt:    attempt,
		Err:        err,
	})
}

// do executes one authenticated request with retry and decodes the JSON
// response into out when out is non-nil. The response body is fully
// consumed inside the retry loop so retries never reuse a dead connection.
func (c *Client) do(ctx context.Context, installationID int64, method, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var respBody []byte
	attempt := 0
	err := rest.RetryWithBackoff(ctx, func(ctx context.Context) error {
		attempt++
		start := time.Now()

		token, tokenErr := c.tokens.InstallationToken(ctx, installationID)
		if tokenErr != nil {
			// Token errors carry their own retryability via rest.Error.
			c.logCall(ctx, method, url, 0, attempt, start, tokenErr)
			return tokenErr
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, url, reader)
		if reqErr != nil {
			restErr := &rest.Error{
				Type:      rest.ErrTypeUnknown,
				Message:   reqErr.Error(),
				Retryable: false,
				Service:   serviceName,
			}
			c.logCall(ctx, method, url, 0, attempt, start, restErr)
			return restErr
		}

		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, callErr := c.httpClient.Do(req)
		if callErr != nil {
			// Could be timeout or network error
			timeoutErr := rest.NewTimeoutError(serviceName, callErr.Error())
			c.logCall(ctx, method, url, 0, attempt, start, timeoutErr)
			return timeoutErr
		}
		defer resp.Body.Close()

		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			restErr := &rest.Error{
				Type:       rest.ErrTypeUnknown,
				Message:    fmt.Sprintf("HTTP %d (failed to read response: %v)", resp.StatusCode, readErr),
				StatusCode: resp.StatusCode,
				Retryable:  resp.StatusCode >= 500,
				Service:    serviceName,
			}
			c.logCall(ctx, method, url, resp.StatusCode, attempt, start, restErr)
			return restErr
		}
		if resp.StatusCode >= 400 {
			mapped := MapHTTPError(resp.StatusCode, bodyBytes)
			c.logCall(ctx, method, url, resp.StatusCode, attempt, start, mapped)
			return mapped
		}

		respBody = bodyBytes
		c.logCall(ctx, method, url, resp.StatusCode, attempt, start, nil)
		return nil
	}, c.retryConf)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ListCheckRuns fetches all check runs posted against a commit ref,
// following pagination until a short page is returned.
func (c *Client) ListCheckRuns(ctx context.Context, installationID int64, repo domain.Repo, ref string) ([]CheckRun, error) {
	var all []CheckRun
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/commits/%s/check-runs?per_page=%d&page=%d",
			c.baseURL, repo.Owner, repo.Name, ref, filesPerPage, page)

		var listResp listCheckRunsResponse
		if err := c.do(ctx, installationID, http.MethodGet, url, nil, &listResp); err != nil {
			return nil, err
		}
		all = append(all, listResp.CheckRuns...)
		if len(listResp.CheckRuns) < filesPerPage {
			return all, nil
		}
	}
}

// CreateCheckRun opens a new check run on the given commit.
func (c *Client) CreateCheckRun(ctx context.Context, installationID int64, repo domain.Repo, input CreateCheckRunRequest) (*CheckRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, repo.Owner, repo.Name)

	var run CheckRun
	if err := c.do(ctx, installationID, http.MethodPost, url, input, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateCheckRun patches an existing check run.
func (c *Client) UpdateCheckRun(ctx context.Context, installationID int64, repo domain.Repo, checkRunID int64, input UpdateCheckRunRequest) error {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d", c.baseURL, repo.Owner, repo.Name, checkRunID)
	return c.do(ctx, installationID, http.MethodPatch, url, input, nil)
}

// ListPullFiles fetches the complete file list of a pull request, following
// pagination until a short page is returned.
func (c *Client) ListPullFiles(ctx context.Context, installationID int64, repo domain.Repo, prNumber int) ([]PRFile, error) {
	var all []PRFile
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.baseURL, repo.Owner, repo.Name, prNumber, filesPerPage, page)

		var files []PRFile
		if err := c.do(ctx, installationID, http.MethodGet, url, nil, &files); err != nil {
			return nil, err
		}
		all = append(all, files...)
		if len(files) < filesPerPage {
			return all, nil
		}
	}
}

// GetBlob fetches a blob by SHA and returns its decoded content.
func (c *Client) GetBlob(ctx context.Context, installationID int64, repo domain.Repo, blobSHA string) ([]byte, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s", c.baseURL, repo.Owner, repo.Name, blobSHA)

	var blob blobResponse
	if err := c.do(ctx, installationID, http.MethodGet, url, nil, &blob); err != nil {
		return nil, err
	}
	return decodeContent(blob.Content, blob.Encoding)
}

// GetContents fetches a file at a path and ref and returns its decoded
// content. A rest.Error with status 404 signals the path does not exist.
func (c *Client) GetContents(ctx context.Context, installationID int64, repo domain.Repo, path, ref string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.baseURL, repo.Owner, repo.Name, path, url.QueryEscape(ref))

	var contents contentsResponse
	if err := c.do(ctx, installationID, http.MethodGet, reqURL, nil, &contents); err != nil {
		return nil, err
	}
	if contents.Type != "" && contents.Type != "file" {
		return nil, fmt.Errorf("contents at %s is %s, not a file", path, contents.Type)
	}
	return decodeContent(contents.Content, contents.Encoding)
}

// decodeContent decodes API file content. GitHub base64-encodes blob and
// contents payloads with embedded newlines.
func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "", "none":
		return []byte(content), nil
	case "base64":
		cleaned := strings.ReplaceAll(content, "\n", "")
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("decode base64 content: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
