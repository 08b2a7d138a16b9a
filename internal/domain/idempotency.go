package domain

import "encoding/json"

// IdempotencyRecord holds the state of one request key: reserved while the
// first request is in flight, completed with the stored response once the
// scope commits. A retry with the same key and payload replays the stored
// response instead of re-running the mutation.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseStatus int
	ResponseBody   json.RawMessage
}

const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)
