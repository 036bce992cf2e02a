package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusCreated, map[string]string{"name": "acme"}); err != nil {
		t.Fatalf("WriteJSON error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["name"] != "acme" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteCodedError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCodedError(rec, http.StatusForbidden, "feature_not_available", "feature not available")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "feature_not_available" || resp.Error != "feature not available" {
		t.Errorf("response = %+v", resp)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "missing") }, http.StatusNotFound},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "who") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "no") }, http.StatusForbidden},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestParseJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"status": "enabled"}`))
	var dest struct {
		Status string `json:"status"`
	}
	if err := ParseJSON(req, &dest); err != nil {
		t.Fatalf("ParseJSON error: %v", err)
	}
	if dest.Status != "enabled" {
		t.Errorf("status = %q", dest.Status)
	}
}

func TestParseJSONOrErrorInvalid(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	var dest map[string]any
	if ParseJSONOrError(rec, req, &dest) {
		t.Fatal("expected failure")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestParsePathInt64(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest("GET", "/orgs/42", nil), map[string]string{"orgID": "42"})

	value, err := ParsePathInt64(req, "orgID")
	if err != nil || value != 42 {
		t.Fatalf("ParsePathInt64 = (%d, %v)", value, err)
	}

	if _, err := ParsePathInt64(req, "missing"); err == nil {
		t.Error("expected error for missing variable")
	}

	bad := mux.SetURLVars(httptest.NewRequest("GET", "/orgs/abc", nil), map[string]string{"orgID": "abc"})
	if _, err := ParsePathInt64(bad, "orgID"); err == nil {
		t.Error("expected error for non-numeric variable")
	}
}

func TestParsePathString(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest("GET", "/m/crm", nil), map[string]string{"module": "crm"})

	value, err := ParsePathString(req, "module")
	if err != nil || value != "crm" {
		t.Fatalf("ParsePathString = (%q, %v)", value, err)
	}

	empty := mux.SetURLVars(httptest.NewRequest("GET", "/m/", nil), map[string]string{"module": ""})
	if _, err := ParsePathString(empty, "module"); err == nil {
		t.Error("expected error for empty variable")
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=25", nil)

	value, err := ParseQueryInt(req, "limit", 100)
	if err != nil || value != 25 {
		t.Fatalf("ParseQueryInt = (%d, %v)", value, err)
	}

	value, err = ParseQueryInt(req, "offset", 0)
	if err != nil || value != 0 {
		t.Fatalf("default = (%d, %v)", value, err)
	}

	bad := httptest.NewRequest("GET", "/?limit=ten", nil)
	if _, err := ParseQueryInt(bad, "limit", 100); err == nil {
		t.Error("expected error for non-numeric value")
	}
}
