// Package bot is the boundary to the external AI-assistant pipeline.
//
// The realtime engine treats completion as a black-box call: a question in,
// an answer out, no retry. Failures surface as an error event to the
// requesting connection only.
package bot

import "context"

// Completer answers a user question within a retrieval scope (typically a
// workspace id). Implementations must honor ctx cancellation; the router
// wraps calls in a configured timeout.
type Completer interface {
	Complete(ctx context.Context, question, scopeID string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, question, scopeID string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, question, scopeID string) (string, error) {
	return f(ctx, question, scopeID)
}
