package authz

import "context"

type decisionKey struct{}

// WithDecision returns a context carrying a granted decision
func WithDecision(ctx context.Context, decision *Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, decision)
}

// DecisionFromContext returns the granted decision for the request, if any
func DecisionFromContext(ctx context.Context) (*Decision, bool) {
	decision, ok := ctx.Value(decisionKey{}).(*Decision)
	return decision, ok
}
