// Package api exposes the authorization core over HTTP: the enforcement
// endpoint, entitlement administration, and change history.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nextsuite/authcore/pkg/audit"
	"github.com/nextsuite/authcore/pkg/authz"
	"github.com/nextsuite/authcore/pkg/directory"
	"github.com/nextsuite/authcore/pkg/entitlement"
	"github.com/nextsuite/authcore/pkg/middleware"
	"github.com/nextsuite/authcore/pkg/observability"
)

// Server is the HTTP API server
type Server struct {
	router   *mux.Router
	enforcer authz.Evaluator
	resolver *entitlement.Resolver
	users    directory.UserDirectory
	auditDB  *audit.DBSink
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithAuditSearch enables the audit event search endpoint
func WithAuditSearch(sink *audit.DBSink) ServerOption {
	return func(s *Server) { s.auditDB = sink }
}

// WithMetrics attaches metrics; handlers are instrumented when set
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates the API server and registers its routes
func NewServer(enforcer authz.Evaluator, resolver *entitlement.Resolver, users directory.UserDirectory, logger *observability.Logger, opts ...ServerOption) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		enforcer: enforcer,
		resolver: resolver,
		users:    users,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(func(next http.Handler) http.Handler {
			return s.metrics.InstrumentHandler("api", next)
		})
	}
	s.router.Use(
		middleware.RequestIDMiddleware(),
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		middleware.ActorMiddleware(s.users),
	)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/enforce", s.handleEnforce).Methods("POST")

	v1.HandleFunc("/orgs/{orgID}/entitlements", s.handleListEntitlements).Methods("GET")
	v1.HandleFunc("/orgs/{orgID}/entitlements/{module}", s.handleGetEntitlement).Methods("GET")
	v1.HandleFunc("/orgs/{orgID}/entitlements/{module}", s.handleSetEntitlement).Methods("PUT")
	v1.HandleFunc("/orgs/{orgID}/entitlements/{module}", s.handleClearEntitlement).Methods("DELETE")
	v1.HandleFunc("/orgs/{orgID}/entitlements/{module}/submodules/{submodule}", s.handleSetSubentitlement).Methods("PUT")
	v1.HandleFunc("/orgs/{orgID}/entitlements/{module}/submodules/{submodule}", s.handleClearSubentitlement).Methods("DELETE")

	v1.HandleFunc("/orgs/{orgID}/entitlement-events", s.handleListEvents).Methods("GET")

	if s.auditDB != nil {
		v1.HandleFunc("/audit/events", s.handleSearchAudit).Methods("GET")
	}
}
