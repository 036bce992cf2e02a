package api

import (
	"errors"
	"net/http"

	"github.com/nextsuite/authcore/pkg/authz"
	"github.com/nextsuite/authcore/pkg/catalog"
	"github.com/nextsuite/authcore/pkg/entitlement"
	"github.com/nextsuite/authcore/pkg/httputil"
	"github.com/nextsuite/authcore/pkg/middleware"
)

// gate enforces the settings permission for entitlement administration and
// returns the effective organization. A write naming another org from a
// non-platform actor lands on the actor's own org.
func (s *Server) gate(w http.ResponseWriter, r *http.Request, action string, write bool) (*authz.Decision, bool) {
	user, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "missing actor identity")
		return nil, false
	}

	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgID")
	if !ok {
		return nil, false
	}

	var opts []authz.Option
	if write {
		opts = append(opts, authz.WithWriteIntent())
	}

	decision, err := s.enforcer.Enforce(r.Context(), user, orgID, "settings", action, opts...)
	if err != nil {
		middleware.WriteAuthzError(w, err)
		return nil, false
	}
	return decision, true
}

// handleListEntitlements returns the merged effective view of every module
func (s *Server) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "read", false)
	if !ok {
		return
	}

	views, err := s.resolver.Effective(r.Context(), decision.OrgID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list entitlements")
		httputil.WriteInternalError(w, errors.New("failed to list entitlements"))
		return
	}

	resp := make([]EntitlementResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, EntitlementResponse{
			Module:         v.Module,
			Status:         string(v.Status),
			Enabled:        v.Enabled,
			Source:         string(v.Source),
			TrialExpiresAt: v.TrialEnds,
		})
	}
	httputil.WriteSuccess(w, resp)
}

// handleGetEntitlement returns one module's resolved status
func (s *Server) handleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "read", false)
	if !ok {
		return
	}
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}

	res, err := s.resolver.Status(r.Context(), decision.OrgID, module, "")
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKey) {
			httputil.WriteNotFound(w, "unknown module")
			return
		}
		s.logger.WithError(err).Error("Failed to resolve entitlement")
		httputil.WriteInternalError(w, errors.New("failed to resolve entitlement"))
		return
	}

	httputil.WriteSuccess(w, EntitlementResponse{
		Module:         module,
		Status:         string(res.Status),
		Enabled:        res.EnabledAt(s.resolver.Now()),
		Source:         string(res.Source),
		TrialExpiresAt: res.TrialExpiresAt,
	})
}

// handleSetEntitlement creates or replaces a module-level override
func (s *Server) handleSetEntitlement(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "write", true)
	if !ok {
		return
	}
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}

	var req SetEntitlementRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := s.resolver.SetModuleStatus(r.Context(), decision.OrgID, module,
		entitlement.Status(req.Status), req.TrialExpiresAt, &decision.User.ID)
	if err != nil {
		s.writeEntitlementError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleClearEntitlement removes a module-level override
func (s *Server) handleClearEntitlement(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "write", true)
	if !ok {
		return
	}
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}

	if err := s.resolver.ClearModuleStatus(r.Context(), decision.OrgID, module, &decision.User.ID); err != nil {
		s.writeEntitlementError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleSetSubentitlement creates or replaces a submodule-level override
func (s *Server) handleSetSubentitlement(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "write", true)
	if !ok {
		return
	}
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	submodule, ok := httputil.ParsePathStringOrError(w, r, "submodule")
	if !ok {
		return
	}

	var req SetEntitlementRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := s.resolver.SetSubmoduleStatus(r.Context(), decision.OrgID, module, submodule,
		entitlement.Status(req.Status), req.TrialExpiresAt, &decision.User.ID)
	if err != nil {
		s.writeEntitlementError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleClearSubentitlement removes a submodule-level override
func (s *Server) handleClearSubentitlement(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "write", true)
	if !ok {
		return
	}
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	submodule, ok := httputil.ParsePathStringOrError(w, r, "submodule")
	if !ok {
		return
	}

	if err := s.resolver.ClearSubmoduleStatus(r.Context(), decision.OrgID, module, submodule, &decision.User.ID); err != nil {
		s.writeEntitlementError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleListEvents returns the org's entitlement change history
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	decision, ok := s.gate(w, r, "read", false)
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := s.resolver.Events(r.Context(), decision.OrgID, limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list entitlement events")
		httputil.WriteInternalError(w, errors.New("failed to list entitlement events"))
		return
	}
	if events == nil {
		events = []entitlement.Event{}
	}
	httputil.WriteSuccess(w, events)
}

func (s *Server) writeEntitlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownKey):
		httputil.WriteNotFound(w, "unknown module")
	case errors.Is(err, entitlement.ErrFixedModule):
		httputil.WriteBadRequest(w, "module status is fixed and cannot be overridden")
	case errors.Is(err, entitlement.ErrInvalidStatus):
		httputil.WriteBadRequest(w, err.Error())
	default:
		s.logger.WithError(err).Error("Entitlement write failed")
		httputil.WriteInternalError(w, errors.New("entitlement update failed"))
	}
}
