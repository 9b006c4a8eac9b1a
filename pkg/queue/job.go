package queue

import "context"

// Job consumes one message type. Handle errors trigger the retry/DLQ
// path; a nil return acknowledges the message.
type Job interface {
	// Name is a human-readable label used in logs.
	Name() string

	// Type is the message type this job is registered for.
	Type() string

	Handle(ctx context.Context, payload interface{}) error
}
