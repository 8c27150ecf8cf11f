package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Blaisesa/notiq/internal/access"
	"github.com/Blaisesa/notiq/internal/store"
)

func TestTemplates_AnonymousListGetsPublicOnly(t *testing.T) {
	var gotScope access.TemplateScope
	fs := &fakeStore{
		listTemplatesFn: func(_ context.Context, sc access.TemplateScope) ([]store.Template, error) {
			gotScope = sc
			return []store.Template{{ID: 1, OwnerID: "admin", Title: "Weekly", IsPublic: true}}, nil
		},
	}
	handler := newTestServer(fs, nil)

	rr := doRequest(t, handler, http.MethodGet, "/api/templates", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without a token", rr.Code)
	}
	if gotScope.OwnerID != "" || !gotScope.IncludePublic {
		t.Errorf("anonymous scope = %+v, want public-only", gotScope)
	}
}

func TestTemplates_AuthenticatedListGetsPublicPlusOwn(t *testing.T) {
	var gotScope access.TemplateScope
	fs := &fakeStore{
		listTemplatesFn: func(_ context.Context, sc access.TemplateScope) ([]store.Template, error) {
			gotScope = sc
			return nil, nil
		},
	}
	handler := newTestServer(fs, nil)

	doRequest(t, handler, http.MethodGet, "/api/templates", "alice-token", "")
	if gotScope.OwnerID != "alice" || !gotScope.IncludePublic {
		t.Errorf("scope = %+v, want own plus public", gotScope)
	}
}

func TestTemplates_AnonymousCreateIs401(t *testing.T) {
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodPost, "/api/templates", "", `{"title":"x"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestTemplates_NonStaffPublicCreateIs403(t *testing.T) {
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodPost, "/api/templates", "alice-token",
		`{"title":"Weekly","is_public":true}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
	if code := errorCode(t, rr); code != "PERMISSION_DENIED" {
		t.Errorf("code = %s, want PERMISSION_DENIED", code)
	}
}

func TestTemplates_StaffPublicCreateSucceeds(t *testing.T) {
	var inserted store.Template
	fs := &fakeStore{
		insertTemplateFn: func(_ context.Context, tpl *store.Template) error {
			tpl.ID = 1
			inserted = *tpl
			return nil
		},
	}
	handler := newTestServer(fs, nil)

	rr := doRequest(t, handler, http.MethodPost, "/api/templates", "admin-token",
		`{"title":"Weekly","is_public":true}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if !inserted.IsPublic {
		t.Errorf("is_public was not persisted")
	}

	var payload TemplatePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if !payload.IsPublic || payload.OwnerID != "admin" {
		t.Errorf("payload = %+v, want public template owned by admin", payload)
	}
}

func TestTemplates_NonStaffPrivateCreateSucceeds(t *testing.T) {
	fs := &fakeStore{}
	handler := newTestServer(fs, nil)

	rr := doRequest(t, handler, http.MethodPost, "/api/templates", "alice-token",
		`{"title":"Mine","category_id":7}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var payload TemplatePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if payload.IsPublic {
		t.Errorf("template should default to private")
	}
	if payload.CategoryID == nil || *payload.CategoryID != 7 {
		t.Errorf("loose category reference not preserved: %+v", payload.CategoryID)
	}
}

func TestTemplates_UpdateSomeoneElsesIs404(t *testing.T) {
	// Store misses because the mutation scope is owner-only, even though the
	// template might be publicly visible.
	handler := newTestServer(&fakeStore{}, nil)

	rr := doRequest(t, handler, http.MethodPut, "/api/templates/5", "alice-token", `{"title":"hijack"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if code := errorCode(t, rr); code != "NOT_FOUND" {
		t.Errorf("code = %s, want NOT_FOUND", code)
	}
}

func TestTemplates_GetPublicAnonymously(t *testing.T) {
	fs := &fakeStore{
		getTemplateFn: func(_ context.Context, id int64, sc access.TemplateScope) (store.Template, error) {
			if sc.Allows("admin", true) {
				return store.Template{ID: id, OwnerID: "admin", Title: "Weekly", IsPublic: true}, nil
			}
			return store.Template{}, sql.ErrNoRows
		},
	}
	handler := newTestServer(fs, nil)

	rr := doRequest(t, handler, http.MethodGet, "/api/templates/1", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}
