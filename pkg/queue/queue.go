package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job handles one message type pulled off the queue.
type Job interface {
	// Type returns the message type the job handles.
	Type() string

	// Handle processes the raw JSON payload.
	Handle(ctx context.Context, payload []byte) error
}

// Config contains the configuration for the queue.
type Config struct {
	Workers    int           // number of workers
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
	PopTimeout time.Duration // BRPOP block per attempt
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}
