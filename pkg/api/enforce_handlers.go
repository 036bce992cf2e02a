package api

import (
	"errors"
	"net/http"

	"github.com/nextsuite/authcore/pkg/authz"
	"github.com/nextsuite/authcore/pkg/httputil"
	"github.com/nextsuite/authcore/pkg/middleware"
)

// handleEnforce decides an access request on behalf of a calling service
func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "missing actor identity")
		return
	}

	var req EnforceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Module == "" || req.Action == "" {
		httputil.WriteBadRequest(w, "module and action are required")
		return
	}

	var opts []authz.Option
	if req.Submodule != "" {
		opts = append(opts, authz.WithSubmodule(req.Submodule))
	}
	if req.Write {
		opts = append(opts, authz.WithWriteIntent())
	}

	decision, err := s.enforcer.Enforce(r.Context(), user, req.OrgID, req.Module, req.Action, opts...)
	if err != nil {
		authzErr, ok := authz.AsError(err)
		if !ok {
			s.logger.WithError(err).Error("Enforcement failed")
			httputil.WriteInternalError(w, errors.New("enforcement failed"))
			return
		}
		httputil.WriteSuccess(w, EnforceResponse{
			Allowed: false,
			Kind:    string(authzErr.Kind),
			Message: authzErr.Message,
		})
		return
	}

	httputil.WriteSuccess(w, EnforceResponse{
		Allowed:   true,
		Bypass:    string(decision.Bypass),
		OrgID:     decision.OrgID,
		Corrected: decision.Corrected,
	})
}
