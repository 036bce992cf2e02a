package authz

import (
	"context"

	"github.com/nextsuite/authcore/pkg/directory"
)

// Evaluator is anything that can decide an access request. Enforcer is the
// canonical implementation; Chain composes them.
type Evaluator interface {
	Enforce(ctx context.Context, user *directory.User, requestedOrgID int64, module, action string, opts ...Option) (*Decision, error)
}

// Chain is the secondary-validation composition for high-sensitivity
// operations: both evaluators must grant. A primary denial is terminal;
// the secondary runs only after a primary grant and can narrow it to a
// denial, never widen a denial into a grant.
type Chain struct {
	primary   Evaluator
	secondary Evaluator
}

// NewChain composes two evaluators
func NewChain(primary, secondary Evaluator) *Chain {
	return &Chain{primary: primary, secondary: secondary}
}

// Enforce implements Evaluator. The returned decision is the primary's;
// the secondary only vetoes.
func (c *Chain) Enforce(ctx context.Context, user *directory.User, requestedOrgID int64, module, action string, opts ...Option) (*Decision, error) {
	decision, err := c.primary.Enforce(ctx, user, requestedOrgID, module, action, opts...)
	if err != nil {
		return nil, err
	}
	if c.secondary != nil {
		if _, err := c.secondary.Enforce(ctx, user, requestedOrgID, module, action, opts...); err != nil {
			return nil, err
		}
	}
	return decision, nil
}
