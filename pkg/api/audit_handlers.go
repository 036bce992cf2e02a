package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nextsuite/authcore/pkg/audit"
	"github.com/nextsuite/authcore/pkg/httputil"
	"github.com/nextsuite/authcore/pkg/middleware"
)

// handleSearchAudit searches decision and entitlement audit events. Platform
// accounts only.
func (s *Server) handleSearchAudit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "missing actor identity")
		return
	}
	if !user.Platform() {
		httputil.WriteForbidden(w, "platform access required")
		return
	}

	filter := audit.SearchFilter{}

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid start time")
			return
		}
		filter.StartTime = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid end time")
			return
		}
		filter.EndTime = &t
	}
	if orgID, err := httputil.ParseQueryInt64(r, "org_id", 0); err == nil && orgID > 0 {
		filter.OrganizationID = &orgID
	}
	if actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0); err == nil && actorID > 0 {
		filter.ActorID = &actorID
	}
	filter.Module = r.URL.Query().Get("module")
	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(eventType)}
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}
	filter.Limit = limit
	if offset, err := httputil.ParseQueryInt(r, "offset", 0); err == nil && offset > 0 {
		filter.Offset = offset
	}

	events, err := s.auditDB.Search(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Audit search failed")
		httputil.WriteInternalError(w, errors.New("audit search failed"))
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	httputil.WriteSuccess(w, events)
}
