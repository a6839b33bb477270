package domain

// EnqueueResult distinguishes a fresh insert from a dedup hit.
type EnqueueResult int

const (
	// EnqueueAccepted means a new entry was stored.
	EnqueueAccepted EnqueueResult = iota

	// EnqueueDuplicate means an entry with the same idempotency key is
	// already pending or leased. Not an error: overlapping webhooks for the
	// same commit are expected.
	EnqueueDuplicate
)

// LeasedJob is a dequeued job held under a lease until acked or nacked.
type LeasedJob struct {
	ID       int64
	Job      ReviewJob
	Attempts int
}
