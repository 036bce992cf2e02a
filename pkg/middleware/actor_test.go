package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextsuite/authcore/pkg/directory"
	"github.com/nextsuite/authcore/pkg/rbac"
)

type stubUsers struct {
	users map[int64]*directory.User
}

func (s *stubUsers) GetUser(ctx context.Context, id int64) (*directory.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return user, nil
}

func actorHandler(users directory.UserDirectory) (http.Handler, *[]int64) {
	var seen []int64
	handler := ActorMiddleware(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := ActorFromContext(r.Context()); ok {
			seen = append(seen, user.ID)
		}
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestActorMiddleware(t *testing.T) {
	orgID := int64(1)
	users := &stubUsers{users: map[int64]*directory.User{
		5: {ID: 5, Role: rbac.RoleMember, OrganizationID: &orgID, IsActive: true},
		6: {ID: 6, Role: rbac.RoleMember, OrganizationID: &orgID, IsActive: false},
	}}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"active user", "5", http.StatusOK},
		{"inactive user", "6", http.StatusUnauthorized},
		{"unknown user", "99", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"garbage header", "abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, seen := actorHandler(users)
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Actor-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && len(*seen) != 1 {
				t.Error("handler did not see the actor")
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// Generated when absent
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated request id")
	}

	// Preserved when supplied
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "upstream-id" {
		t.Errorf("request id = %q", got)
	}
}
