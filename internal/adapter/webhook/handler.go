package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/replikanti/flowlint/internal/domain"
	"github.com/replikanti/flowlint/internal/usecase/dispatch"
)

// Enqueuer admits jobs to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.ReviewJob) (domain.EnqueueResult, error)
}

// Logger is the logging surface the ingress needs.
type Logger interface {
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
	LogError(ctx context.Context, message string, fields map[string]interface{})
}

// Handler receives GitHub webhook deliveries.
type Handler struct {
	secret     string
	classifier *dispatch.Classifier
	queue      Enqueuer
	logger     Logger
}

// NewHandler wires the webhook endpoint.
func NewHandler(secret string, classifier *dispatch.Classifier, queue Enqueuer, logger Logger) *Handler {
	return &Handler{
		secret:     secret,
		classifier: classifier,
		queue:      queue,
		logger:     logger,
	}
}

// response is the JSON body of every webhook answer.
type response struct {
	OK       bool   `json:"ok"`
	Delivery string `json:"delivery,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ServeHTTP implements the delivery admission flow: authenticate, classify,
// enqueue. Every delivery is answered quickly; analysis happens on the
// worker side.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{OK: false, Error: "method not allowed"})
		return
	}

	ctx := r.Context()
	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, response{OK: false, Error: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, response{OK: false, Error: "failed to read body"})
		return
	}

	if err := VerifySignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		// The diagnostic stays in the logs; the client only learns that
		// verification failed. Neither the secret nor the body is logged.
		h.logger.LogWarning(ctx, "webhook signature verification failed", map[string]interface{}{
			"delivery":    delivery,
			"reason":      err.Error(),
			"received":    r.Header.Get("X-Hub-Signature-256"),
			"expected":    SignBody(h.secret, body),
			"body_sha256": BodyDigest(body),
		})
		writeJSON(w, http.StatusUnauthorized, response{OK: false, Error: "signature verification failed"})
		return
	}

	// A missing or unrecognized event type is acknowledged, not rejected:
	// the classifier ignores it and the delivery gets a 200 no-op.
	eventType := r.Header.Get("X-GitHub-Event")

	outcome, err := h.classifier.Classify(eventType, body)
	if err != nil {
		h.logger.LogWarning(ctx, "rejecting malformed webhook payload", map[string]interface{}{
			"delivery": delivery,
			"event":    eventType,
			"error":    err.Error(),
		})
		writeJSON(w, http.StatusBadRequest, response{OK: false, Error: "malformed payload"})
		return
	}

	switch outcome.Decision {
	case dispatch.DecisionIgnored:
		writeJSON(w, http.StatusOK, response{OK: true, Delivery: delivery})
		return

	case dispatch.DecisionSoftRejected:
		h.logger.LogInfo(ctx, "webhook soft-rejected", map[string]interface{}{
			"delivery": delivery,
			"event":    eventType,
			"reason":   outcome.Reason,
		})
		writeJSON(w, http.StatusAccepted, response{OK: false, Error: outcome.Reason})
		return
	}

	var enqueued, duplicates int
	for _, job := range outcome.Jobs {
		result, err := h.queue.Enqueue(ctx, job)
		if err != nil {
			h.logger.LogError(ctx, "failed to enqueue job", map[string]interface{}{
				"delivery": delivery,
				"job":      job.IdempotencyKey(),
				"error":    err.Error(),
			})
			writeJSON(w, http.StatusInternalServerError, response{OK: false, Error: "internal server error"})
			return
		}
		if result == domain.EnqueueDuplicate {
			duplicates++
		} else {
			enqueued++
		}
	}

	h.logger.LogInfo(ctx, "webhook accepted", map[string]interface{}{
		"delivery":   delivery,
		"event":      eventType,
		"enqueued":   enqueued,
		"duplicates": duplicates,
	})
	writeJSON(w, http.StatusOK, response{OK: true, Delivery: delivery})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
