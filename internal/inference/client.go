// Package inference provides vision-capable model clients used to judge
// whether a monitored event has occurred in a frame sequence.
package inference

import (
	"context"
	"errors"
)

// ErrThrottled signals the service rejected the request for rate limiting.
// Callers back off and retry; every other error class is final.
var ErrThrottled = errors.New("inference service throttled the request")

// Turn is one user message in the bounded conversation: an instruction plus
// at most one base64-encoded JPEG frame.
type Turn struct {
	Text     string
	ImageB64 string
}

// Client sends a conversation snapshot to a vision model and returns its
// free-form text reply.
type Client interface {
	// Name returns the human-readable client name.
	Name() string

	// Classify sends the system instruction and user turns, returning the
	// model's reply text.
	Classify(ctx context.Context, system string, turns []Turn) (string, error)

	// Close releases any resources held by the client.
	Close() error
}
