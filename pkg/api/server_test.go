package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/nextsuite/authcore/pkg/audit"
	"github.com/nextsuite/authcore/pkg/authz"
	"github.com/nextsuite/authcore/pkg/catalog"
	"github.com/nextsuite/authcore/pkg/directory"
	"github.com/nextsuite/authcore/pkg/entitlement"
	"github.com/nextsuite/authcore/pkg/httputil"
	"github.com/nextsuite/authcore/pkg/observability"
	"github.com/nextsuite/authcore/pkg/rbac"
)

type fakeUsers struct {
	users map[int64]*directory.User
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*directory.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return u, nil
}

type fakeOrgs struct {
	orgs map[int64]*directory.Organization
}

func (f *fakeOrgs) GetOrganization(_ context.Context, id int64) (*directory.Organization, error) {
	o, ok := f.orgs[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return o, nil
}

type memStore struct {
	modules    map[string]*entitlement.OrgEntitlement
	submodules map[string]*entitlement.OrgSubentitlement
	events     []entitlement.Event
}

func newMemStore() *memStore {
	return &memStore{
		modules:    map[string]*entitlement.OrgEntitlement{},
		submodules: map[string]*entitlement.OrgSubentitlement{},
	}
}

func modKey(orgID int64, module string) string { return fmt.Sprintf("%d/%s", orgID, module) }

func subKey(orgID int64, module, submodule string) string {
	return fmt.Sprintf("%d/%s/%s", orgID, module, submodule)
}

func (m *memStore) GetOrgEntitlement(_ context.Context, orgID int64, module string) (*entitlement.OrgEntitlement, error) {
	return m.modules[modKey(orgID, module)], nil
}

func (m *memStore) GetOrgSubentitlement(_ context.Context, orgID int64, module, submodule string) (*entitlement.OrgSubentitlement, error) {
	return m.submodules[subKey(orgID, module, submodule)], nil
}

func (m *memStore) ListOrgEntitlements(_ context.Context, orgID int64) ([]entitlement.OrgEntitlement, error) {
	var out []entitlement.OrgEntitlement
	for _, ent := range m.modules {
		if ent.OrgID == orgID {
			out = append(out, *ent)
		}
	}
	return out, nil
}

func (m *memStore) UpsertOrgEntitlement(_ context.Context, ent *entitlement.OrgEntitlement) error {
	m.modules[modKey(ent.OrgID, ent.Module)] = ent
	return nil
}

func (m *memStore) DeleteOrgEntitlement(_ context.Context, orgID int64, module string) error {
	delete(m.modules, modKey(orgID, module))
	return nil
}

func (m *memStore) UpsertOrgSubentitlement(_ context.Context, ent *entitlement.OrgSubentitlement) error {
	m.submodules[subKey(ent.OrgID, ent.Module, ent.Submodule)] = ent
	return nil
}

func (m *memStore) DeleteOrgSubentitlement(_ context.Context, orgID int64, module, submodule string) error {
	delete(m.submodules, subKey(orgID, module, submodule))
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, event *entitlement.Event) error {
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, orgID int64, limit, offset int) ([]entitlement.Event, error) {
	var out []entitlement.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].OrgID == orgID {
			out = append(out, m.events[i])
		}
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stubEvaluator grants by default, attributing the decision to the requested
// org. Set err to force a denial.
type stubEvaluator struct {
	err  error
	last struct {
		module string
		action string
	}
}

func (s *stubEvaluator) Enforce(_ context.Context, user *directory.User, requestedOrgID int64, module, action string, _ ...authz.Option) (*authz.Decision, error) {
	s.last.module = module
	s.last.action = action
	if s.err != nil {
		return nil, s.err
	}
	return &authz.Decision{User: user, OrgID: requestedOrgID}, nil
}

type serverFixture struct {
	server    *Server
	store     *memStore
	evaluator *stubEvaluator
}

func newServerFixture(t *testing.T, opts ...ServerOption) *serverFixture {
	t.Helper()

	cat := catalog.New(&catalog.File{
		Modules: []catalog.Module{
			{Key: "dashboard", Name: "Dashboard", AlwaysOn: true},
			{Key: "crm", Name: "CRM", Submodules: []catalog.Submodule{
				{Key: "pipelines", Name: "Pipelines"},
			}},
			{Key: "payroll", Name: "Payroll"},
		},
		Plans: []catalog.Plan{
			{Key: "starter", Name: "Starter", Defaults: []catalog.PlanDefault{
				{Module: "crm", Status: "enabled"},
				{Module: "payroll", Status: "disabled"},
			}},
		},
	})

	store := newMemStore()
	orgs := &fakeOrgs{orgs: map[int64]*directory.Organization{
		1: {ID: 1, Name: "Acme", Slug: "acme", PlanKey: "starter", IsActive: true},
	}}
	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	resolver := entitlement.NewResolver(cat, store, orgs, nil,
		entitlement.WithLogger(logger))

	orgID := int64(1)
	users := &fakeUsers{users: map[int64]*directory.User{
		10: {ID: 10, Username: "admin", Role: rbac.RoleOrgAdmin, OrganizationID: &orgID, IsActive: true},
		11: {ID: 11, Username: "root", Role: rbac.RoleSuperAdmin, IsSuperAdmin: true, IsActive: true},
	}}

	evaluator := &stubEvaluator{}
	server := NewServer(evaluator, resolver, users, logger, opts...)
	return &serverFixture{server: server, store: store, evaluator: evaluator}
}

func (f *serverFixture) do(t *testing.T, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestEnforceEndpointAllowed(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "POST", "/v1/enforce", "10", EnforceRequest{
		OrgID:  1,
		Module: "crm",
		Action: "read",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp EnforceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Allowed || resp.OrgID != 1 {
		t.Errorf("response = %+v", resp)
	}
	if f.evaluator.last.module != "crm" || f.evaluator.last.action != "read" {
		t.Errorf("evaluator saw %+v", f.evaluator.last)
	}
}

func TestEnforceEndpointDenied(t *testing.T) {
	f := newServerFixture(t)
	f.evaluator.err = &authz.Error{
		Kind:    authz.KindPermissionDenied,
		Module:  "crm",
		Action:  "write",
		Message: "insufficient permissions",
	}

	rec := f.do(t, "POST", "/v1/enforce", "10", EnforceRequest{
		OrgID:  1,
		Module: "crm",
		Action: "write",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("denials answer 200, got %d", rec.Code)
	}

	var resp EnforceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Allowed {
		t.Error("expected allowed false")
	}
	if resp.Kind != "permission_denied" || resp.Message != "insufficient permissions" {
		t.Errorf("response = %+v", resp)
	}
}

func TestEnforceEndpointInternalError(t *testing.T) {
	f := newServerFixture(t)
	f.evaluator.err = errors.New("pq: connection reset by peer")

	rec := f.do(t, "POST", "/v1/enforce", "10", EnforceRequest{
		OrgID:  1,
		Module: "crm",
		Action: "read",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "enforcement failed" {
		t.Errorf("internal detail leaked to the client: %q", resp.Error)
	}
}

func TestEnforceEndpointValidation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "POST", "/v1/enforce", "10", EnforceRequest{OrgID: 1, Action: "read"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing module: status = %d", rec.Code)
	}

	rec = f.do(t, "POST", "/v1/enforce", "", EnforceRequest{OrgID: 1, Module: "crm", Action: "read"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing actor: status = %d", rec.Code)
	}
}

func TestGetEntitlement(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "GET", "/v1/orgs/1/entitlements/crm", "10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp EntitlementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "enabled" || resp.Source != "plan" || !resp.Enabled {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetEntitlementUnknownModule(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "GET", "/v1/orgs/1/entitlements/warehouse", "10", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListEntitlements(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "GET", "/v1/orgs/1/entitlements", "10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp []EntitlementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(resp))
	}
	byModule := map[string]EntitlementResponse{}
	for _, v := range resp {
		byModule[v.Module] = v
	}
	if v := byModule["dashboard"]; v.Source != "always_on" || !v.Enabled {
		t.Errorf("dashboard = %+v", v)
	}
	if v := byModule["payroll"]; v.Enabled {
		t.Errorf("payroll = %+v", v)
	}
}

func TestSetAndClearEntitlement(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "PUT", "/v1/orgs/1/entitlements/payroll", "10",
		SetEntitlementRequest{Status: "enabled"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.store.modules[modKey(1, "payroll")] == nil {
		t.Fatal("override row not written")
	}

	rec = f.do(t, "GET", "/v1/orgs/1/entitlements/payroll", "10", nil)
	var resp EntitlementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "enabled" || resp.Source != "override" {
		t.Errorf("after set: %+v", resp)
	}

	rec = f.do(t, "DELETE", "/v1/orgs/1/entitlements/payroll", "10", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear: status = %d", rec.Code)
	}
	if f.store.modules[modKey(1, "payroll")] != nil {
		t.Error("override row not removed")
	}
}

func TestSetEntitlementErrorMapping(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name   string
		path   string
		body   SetEntitlementRequest
		status int
	}{
		{"fixed module", "/v1/orgs/1/entitlements/dashboard", SetEntitlementRequest{Status: "disabled"}, http.StatusBadRequest},
		{"unknown module", "/v1/orgs/1/entitlements/warehouse", SetEntitlementRequest{Status: "enabled"}, http.StatusNotFound},
		{"invalid status", "/v1/orgs/1/entitlements/payroll", SetEntitlementRequest{Status: "maybe"}, http.StatusBadRequest},
		{"trial without expiry", "/v1/orgs/1/entitlements/payroll", SetEntitlementRequest{Status: "trial"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "PUT", tt.path, "10", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestSetSubentitlement(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "PUT", "/v1/orgs/1/entitlements/crm/submodules/pipelines", "10",
		SetEntitlementRequest{Status: "disabled"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.store.submodules[subKey(1, "crm", "pipelines")] == nil {
		t.Fatal("submodule row not written")
	}

	rec = f.do(t, "DELETE", "/v1/orgs/1/entitlements/crm/submodules/pipelines", "10", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear: status = %d", rec.Code)
	}
}

func TestEntitlementAdminDenialMapping(t *testing.T) {
	f := newServerFixture(t)
	f.evaluator.err = &authz.Error{
		Kind:    authz.KindCrossTenantAccess,
		Message: "not found",
	}

	rec := f.do(t, "GET", "/v1/orgs/2/entitlements", "10", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant read must read as absence, got %d", rec.Code)
	}

	var resp httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "not found" {
		t.Errorf("body = %+v", resp)
	}
}

func TestListEvents(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "PUT", "/v1/orgs/1/entitlements/payroll", "10",
		SetEntitlementRequest{Status: "enabled"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set: status = %d", rec.Code)
	}

	rec = f.do(t, "GET", "/v1/orgs/1/entitlement-events", "10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var events []entitlement.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Module != "payroll" || events[0].NewStatus != entitlement.StatusEnabled {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].ActorID == nil || *events[0].ActorID != 10 {
		t.Errorf("actor = %v", events[0].ActorID)
	}
}

func TestListEventsEmpty(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "GET", "/v1/orgs/1/entitlement-events", "10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body == "null\n" {
		t.Error("empty history must encode as an empty array")
	}
}

func TestAuditSearchRequiresPlatform(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	sink, err := audit.NewDBSink(db, logger)
	if err != nil {
		t.Fatal(err)
	}

	f := newServerFixture(t, WithAuditSearch(sink))

	rec := f.do(t, "GET", "/v1/audit/events", "10", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("org actor: status = %d", rec.Code)
	}

	mock.ExpectQuery("SELECT (.+) FROM audit_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "timestamp", "event_type", "actor_id", "organization_id",
			"module", "submodule", "action", "kind", "bypass", "message", "metadata",
		}))

	rec = f.do(t, "GET", "/v1/audit/events", "11", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("platform actor: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body == "null\n" {
		t.Error("empty result must encode as an empty array")
	}
}

func TestAuditSearchDisabledWithoutSink(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, "GET", "/v1/audit/events", "11", nil)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("unregistered route: status = %d", rec.Code)
	}
}
