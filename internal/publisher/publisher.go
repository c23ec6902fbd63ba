// Package publisher defines the run-summary publishing contract. After
// each run the coordinator publishes a summary message so downstream
// consumers can react without polling the store.
package publisher

import "context"

// Publisher sends one JSON-encoded payload per call and returns the
// broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
	Close() error
}

// NoOp discards every publish. Used when no broker is configured.
type NoOp struct{}

// Publish discards the payload.
func (NoOp) Publish(context.Context, any) (string, error) { return "", nil }

// Close is a no-op.
func (NoOp) Close() error { return nil }
