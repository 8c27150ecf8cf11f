package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	fs := &fakeStore{
		pingFn: func(context.Context) error {
			return errors.New("connection refused")
		},
	}
	handler := newTestServer(fs, nil)

	rr := doRequest(t, handler, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if status := response["status"]; status != "not_ready" {
		t.Errorf("status = %v, want not_ready", status)
	}
}

func TestOptionsRequest(t *testing.T) {
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodOptions, "/api/notes", "", "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 for OPTIONS", rr.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/api/health", "", "")
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("CORS origin = %q, want *", origin)
	}
	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cache)
	}
}

func TestSessionEndpoint(t *testing.T) {
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/api/session", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response["authenticated"] != false {
		t.Errorf("anonymous session should report authenticated=false")
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/session", "admin-token", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response["authenticated"] != true || response["is_staff"] != true {
		t.Errorf("staff session payload = %v", response)
	}
}
