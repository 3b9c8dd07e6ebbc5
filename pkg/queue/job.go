package queue

import "context"

// Job handles one message type. Handle must be safe to retry: a failed
// message is delivered again after RetryDelay.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
