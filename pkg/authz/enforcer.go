package authz

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextsuite/authcore/pkg/audit"
	"github.com/nextsuite/authcore/pkg/catalog"
	"github.com/nextsuite/authcore/pkg/directory"
	"github.com/nextsuite/authcore/pkg/entitlement"
	"github.com/nextsuite/authcore/pkg/observability"
	"github.com/nextsuite/authcore/pkg/rbac"
	"github.com/nextsuite/authcore/pkg/tenant"
)

// Decision is a granted enforcement outcome
type Decision struct {
	User   *directory.User
	OrgID  int64
	Bypass rbac.BypassKind

	// Corrected is set when a write request named another organization and
	// was silently redirected to the actor's own
	Corrected bool
}

// Bypassed reports whether the permission lookup was skipped
func (d *Decision) Bypassed() bool { return d.Bypass != rbac.BypassNone }

// request carries per-call options
type request struct {
	submodule string
	intent    tenant.Intent
}

// Option configures a single Enforce call
type Option func(*request)

// WithSubmodule gates at submodule grain
func WithSubmodule(submodule string) Option {
	return func(r *request) { r.submodule = submodule }
}

// WithWriteIntent marks the operation as a write, so a mismatched
// organization id is corrected instead of rejected
func WithWriteIntent() Option {
	return func(r *request) { r.intent = tenant.IntentWrite }
}

// Enforcer orders the enforcement steps: tenant resolution, the entitlement
// gate, RBAC bypass rules, then the permission lookup. The entitlement gate
// runs before any bypass rule: no role, super admin included, reaches a
// module the organization's subscription does not carry.
type Enforcer struct {
	resolver *entitlement.Resolver
	index    *rbac.Index

	lookupTimeout time.Duration
	sink          audit.Sink
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
	now           func() time.Time
}

// EnforcerOption configures an Enforcer
type EnforcerOption func(*Enforcer)

// WithLookupTimeout bounds the entitlement lookup; on expiry the gate fails
// closed
func WithLookupTimeout(d time.Duration) EnforcerOption {
	return func(e *Enforcer) { e.lookupTimeout = d }
}

// WithAudit attaches an audit sink for decision events
func WithAudit(sink audit.Sink) EnforcerOption {
	return func(e *Enforcer) { e.sink = sink }
}

// WithLogger attaches a logger
func WithLogger(logger *observability.Logger) EnforcerOption {
	return func(e *Enforcer) { e.logger = logger }
}

// WithMetrics attaches metrics
func WithMetrics(m *observability.Metrics) EnforcerOption {
	return func(e *Enforcer) { e.metrics = m }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) EnforcerOption {
	return func(e *Enforcer) { e.now = now }
}

// NewEnforcer creates an enforcer over the given resolver and permission
// index
func NewEnforcer(resolver *entitlement.Resolver, index *rbac.Index, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		resolver:      resolver,
		index:         index,
		lookupTimeout: 2 * time.Second,
		sink:          audit.NopSink{},
		logger:        observability.NewLogger(observability.InfoLevel, nil),
		tracer:        observability.Tracer("authcore/authz"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enforce decides whether user may perform action on module within the
// requested organization. A nil error means access is granted; otherwise
// the error is an *Error carrying the denial kind.
func (e *Enforcer) Enforce(ctx context.Context, user *directory.User, requestedOrgID int64, module, action string, opts ...Option) (*Decision, error) {
	start := e.now()

	req := request{intent: tenant.IntentRead}
	for _, opt := range opts {
		opt(&req)
	}

	ctx, span := e.tracer.Start(ctx, "authz.Enforce",
		trace.WithAttributes(
			attribute.String("authz.module", module),
			attribute.String("authz.action", action),
		),
	)
	defer span.End()

	decision, err := e.enforce(ctx, user, requestedOrgID, module, action, req)
	e.observe(ctx, span, user, module, action, req.submodule, decision, err, start)
	if err != nil {
		return nil, err
	}
	return decision, nil
}

func (e *Enforcer) enforce(ctx context.Context, user *directory.User, requestedOrgID int64, module, action string, req request) (*Decision, error) {
	// Step 1: establish the tenant
	scope, err := tenant.Resolve(user, requestedOrgID, req.intent)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrNoTenant):
			return nil, denied(KindTenantContextMissing, module, action,
				"no organization context", err)
		case errors.Is(err, tenant.ErrCrossTenant):
			// Reads across tenants answer as if the resource does not exist
			return nil, denied(KindCrossTenantAccess, module, action,
				"not found", err)
		}
		return nil, denied(KindTenantContextMissing, module, action,
			"no organization context", err)
	}

	// Step 2: the entitlement gate, before any role-based bypass
	res, err := e.lookup(ctx, scope.OrgID, module, req.submodule)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKey) {
			// A permission referencing an unknown module is a wiring bug;
			// fail closed rather than guess.
			e.logger.WithError(err).
				WithField("module", module).
				WithField("action", action).
				Warn("Permission references module unknown to the catalog")
		} else {
			e.logger.WithError(err).
				WithField("org_id", scope.OrgID).
				WithField("module", module).
				Warn("Entitlement lookup failed, denying access")
		}
		return nil, denied(KindEntitlementDenied, module, action,
			"feature not available", err)
	}
	if !res.RBACOnly && !res.EnabledAt(e.now()) {
		return nil, denied(KindEntitlementDenied, module, action,
			"feature not available", nil)
	}

	decision := &Decision{User: user, OrgID: scope.OrgID, Corrected: scope.Corrected}

	// Step 3: bypass rules skip the permission lookup only
	if kind, ok := rbac.BypassesRBAC(user); ok {
		decision.Bypass = kind
		return decision, nil
	}

	// Step 4: the permission lookup
	if !e.index.Has(user.GetRole(), module, action) {
		return nil, denied(KindPermissionDenied, module, action,
			"insufficient permissions", nil)
	}

	return decision, nil
}

// lookup resolves the entitlement under the configured timeout
func (e *Enforcer) lookup(ctx context.Context, orgID int64, module, submodule string) (entitlement.Resolution, error) {
	if e.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lookupTimeout)
		defer cancel()
	}
	return e.resolver.Status(ctx, orgID, module, submodule)
}

func (e *Enforcer) observe(ctx context.Context, span trace.Span, user *directory.User, module, action, submodule string, decision *Decision, err error, start time.Time) {
	outcome := "granted"
	var kind Kind
	if err != nil {
		outcome = "denied"
		if authzErr, ok := AsError(err); ok {
			kind = authzErr.Kind
		}
		span.SetStatus(codes.Error, string(kind))
	} else if decision.Bypassed() {
		outcome = "bypass"
	}

	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
		e.metrics.DecisionDuration.WithLabelValues(outcome).Observe(e.now().Sub(start).Seconds())
		if decision != nil && decision.Bypassed() {
			e.metrics.BypassesTotal.WithLabelValues(string(decision.Bypass)).Inc()
		}
	}

	event := e.decisionEvent(user, module, action, submodule, decision, kind, outcome)
	e.sink.Record(ctx, event)
}

func (e *Enforcer) decisionEvent(user *directory.User, module, action, submodule string, decision *Decision, kind Kind, outcome string) *audit.Event {
	var event *audit.Event
	switch outcome {
	case "granted":
		event = audit.NewEvent(audit.EventTypeDecisionGranted)
	case "bypass":
		event = audit.NewEvent(audit.EventTypeDecisionBypass)
		event.Bypass = string(decision.Bypass)
	default:
		event = audit.NewEvent(audit.EventTypeDecisionDenied)
		event.Kind = string(kind)
	}

	if user != nil {
		event.ActorID = &user.ID
	}
	if decision != nil {
		event.OrganizationID = decision.OrgID
	}
	event.Module = module
	event.Submodule = submodule
	event.Action = action
	return event
}
