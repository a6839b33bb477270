package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikanti/flowlint/internal/adapter/webhook"
	"github.com/replikanti/flowlint/internal/domain"
	"github.com/replikanti/flowlint/internal/usecase/dispatch"
)

const testSecret = "s3cret"

// MockEnqueuer is a mock implementation of the Enqueuer interface.
type MockEnqueuer struct {
	mu          sync.Mutex
	EnqueueFunc func(ctx context.Context, job domain.ReviewJob) (domain.EnqueueResult, error)
	Jobs        []domain.ReviewJob
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, job domain.ReviewJob) (domain.EnqueueResult, error) {
	m.mu.Lock()
	m.Jobs = append(m.Jobs, job)
	m.mu.Unlock()
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, job)
	}
	return domain.EnqueueAccepted, nil
}

// nopLogger satisfies the handler's Logger with no output.
type nopLogger struct{}

func (nopLogger) LogInfo(context.Context, string, map[string]interface{})    {}
func (nopLogger) LogWarning(context.Context, string, map[string]interface{}) {}
func (nopLogger) LogError(context.Context, string, map[string]interface{})   {}

// recordingLogger captures warning fields for assertions.
type recordingLogger struct {
	nopLogger
	mu       sync.Mutex
	warnings []map[string]interface{}
}

func (l *recordingLogger) LogWarning(_ context.Context, _ string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fields)
}

func (l *recordingLogger) warningFields() []map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]map[string]interface{}{}, l.warnings...)
}

func newHandler(queue *MockEnqueuer) *webhook.Handler {
	classifier := dispatch.NewClassifier("FlowLint", "flowlint")
	return webhook.NewHandler(testSecret, classifier, queue, nopLogger{})
}

func deliver(t *testing.T, handler http.Handler, event string, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if sign {
		req.Header.Set("X-Hub-Signature-256", webhook.SignBody(testSecret, body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func openedPullRequest() []byte {
	return []byte(`{
		"action": "opened",
		"installation": {"id": 42},
		"repository": {"full_name": "acme/widgets"},
		"pull_request": {"number": 7, "head": {"ref": "feature/x", "sha": "abc123"}}
	}`)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_AcceptedDelivery(t *testing.T) {
	queue := &MockEnqueuer{}

	rec := deliver(t, newHandler(queue), "pull_request", openedPullRequest(), true)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "delivery-1", body["delivery"])

	require.Len(t, queue.Jobs, 1)
	assert.Equal(t, "acme/widgets#7@abc123", queue.Jobs[0].IdempotencyKey())
}

func TestHandler_InvalidSignature(t *testing.T) {
	queue := &MockEnqueuer{}

	rec := deliver(t, newHandler(queue), "pull_request", openedPullRequest(), false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, false, body["ok"])
	// The client gets a generic message, not the diagnostic.
	assert.Equal(t, "signature verification failed", body["error"])
	assert.Empty(t, queue.Jobs)
}

func TestHandler_SignatureFailureLogsDiagnostic(t *testing.T) {
	queue := &MockEnqueuer{}
	logger := &recordingLogger{}
	classifier := dispatch.NewClassifier("FlowLint", "flowlint")
	handler := webhook.NewHandler(testSecret, classifier, queue, logger)

	body := openedPullRequest()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	warnings := logger.warningFields()
	require.Len(t, warnings, 1)
	fields := warnings[0]
	assert.Equal(t, "sha256=deadbeef", fields["received"])
	assert.Equal(t, webhook.SignBody(testSecret, body), fields["expected"])
	assert.Equal(t, webhook.BodyDigest(body), fields["body_sha256"])
}

func TestHandler_TamperedBodyRejected(t *testing.T) {
	queue := &MockEnqueuer{}
	handler := newHandler(queue)

	body := openedPullRequest()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(append(body, ' ')))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", webhook.SignBody(testSecret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, queue.Jobs)
}

func TestHandler_MissingEventHeaderIsNoOp(t *testing.T) {
	queue := &MockEnqueuer{}

	rec := deliver(t, newHandler(queue), "", openedPullRequest(), true)

	// No event type means nothing to act on; the delivery is still
	// acknowledged so GitHub does not mark it failed.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeResponse(t, rec)["ok"])
	assert.Empty(t, queue.Jobs)
}

func TestHandler_IgnoredEvent(t *testing.T) {
	queue := &MockEnqueuer{}
	body := []byte(`{"action":"whatever"}`)

	rec := deliver(t, newHandler(queue), "push", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeResponse(t, rec)["ok"])
	assert.Empty(t, queue.Jobs)
}

func TestHandler_SoftRejection(t *testing.T) {
	body := []byte(`{
		"action": "opened",
		"repository": {"full_name": "acme/widgets"},
		"pull_request": {"number": 7, "head": {"ref": "f", "sha": "abc123"}}
	}`)

	rec := deliver(t, newHandler(&MockEnqueuer{}), "pull_request", body, true)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, "missing installation id", resp["error"])
}

func TestHandler_MalformedPayload(t *testing.T) {
	rec := deliver(t, newHandler(&MockEnqueuer{}), "pull_request", []byte(`{"action":`), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_DuplicateIsSuccess(t *testing.T) {
	queue := &MockEnqueuer{
		EnqueueFunc: func(ctx context.Context, job domain.ReviewJob) (domain.EnqueueResult, error) {
			return domain.EnqueueDuplicate, nil
		},
	}

	rec := deliver(t, newHandler(queue), "pull_request", openedPullRequest(), true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeResponse(t, rec)["ok"])
}

func TestHandler_EnqueueFailure(t *testing.T) {
	queue := &MockEnqueuer{
		EnqueueFunc: func(ctx context.Context, job domain.ReviewJob) (domain.EnqueueResult, error) {
			return 0, errors.New("disk full")
		},
	}

	rec := deliver(t, newHandler(queue), "pull_request", openedPullRequest(), true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeResponse(t, rec)["error"])
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/webhooks/github", nil)
	rec := httptest.NewRecorder()
	newHandler(&MockEnqueuer{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_CheckSuiteFanOutEnqueuesAll(t *testing.T) {
	queue := &MockEnqueuer{}
	body := []byte(`{
		"action": "requested",
		"installation": {"id": 42},
		"repository": {"full_name": "acme/widgets"},
		"check_suite": {
			"id": 900,
			"head_sha": "abc123",
			"pull_requests": [
				{"number": 7, "head": {"ref": "a", "sha": "abc123"}},
				{"number": 8, "head": {"ref": "b", "sha": "abc123"}}
			]
		}
	}`)

	rec := deliver(t, newHandler(queue), "check_suite", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queue.Jobs, 2)
}
