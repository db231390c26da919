package dispatch

import "errors"

// Failure taxonomy surfaced to callers. The HTTP layer maps these to
// response envelopes; everything else is an internal error.
var (
	// ErrInvalidRequest: a required field is missing or malformed. No state
	// was mutated.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrQueueEmpty: the MCQ queue has zero members.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrNoEligible: the queue has members but every one is at the holder
	// cap. Distinct from ErrQueueEmpty; callers need not retry either.
	ErrNoEligible = errors.New("no eligible items")

	// ErrNotFound: the referenced task or question is absent from the queue
	// or the document store.
	ErrNotFound = errors.New("not found")

	// ErrBatchFailed: one or more staged store operations failed. Operations
	// already applied are not rolled back; the queue may be left partially
	// mutated until the next re-seed or reclamation pass restores it.
	ErrBatchFailed = errors.New("store batch failed")
)
