package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Blaisesa/notiq/internal/access"
	"github.com/Blaisesa/notiq/internal/export"
	"github.com/Blaisesa/notiq/internal/identity"
	"github.com/Blaisesa/notiq/internal/store"
)

type fakeStore struct {
	upsertUserFn            func(context.Context, store.User) (store.User, error)
	listCategoriesFn        func(context.Context, access.CategoryScope) ([]store.Category, error)
	getCategoryFn           func(context.Context, int64, access.CategoryScope) (store.Category, error)
	insertCategoryFn        func(context.Context, *store.Category) error
	updateCategoryFn        func(context.Context, *store.Category) error
	deleteCategoryFn        func(context.Context, int64, string) error
	listNotesFn             func(context.Context, access.NoteScope, store.NoteFilter) ([]store.Note, error)
	getNoteFn               func(context.Context, int64, access.NoteScope) (store.Note, error)
	insertNoteFn            func(context.Context, *store.Note) error
	updateNoteFn            func(context.Context, *store.Note) error
	deleteNoteFn            func(context.Context, int64, access.NoteScope) error
	listNoteIDsByCategoryFn func(context.Context, int64) ([]int64, error)
	listTemplatesFn         func(context.Context, access.TemplateScope) ([]store.Template, error)
	getTemplateFn           func(context.Context, int64, access.TemplateScope) (store.Template, error)
	insertTemplateFn        func(context.Context, *store.Template) error
	updateTemplateFn        func(context.Context, *store.Template) error
	deleteTemplateFn        func(context.Context, int64, string) error
	pingFn                  func(context.Context) error
}

func (f *fakeStore) UpsertUser(ctx context.Context, user store.User) (store.User, error) {
	if f.upsertUserFn != nil {
		return f.upsertUserFn(ctx, user)
	}
	return user, nil
}

func (f *fakeStore) ListCategories(ctx context.Context, sc access.CategoryScope) ([]store.Category, error) {
	if f.listCategoriesFn != nil {
		return f.listCategoriesFn(ctx, sc)
	}
	return nil, nil
}

func (f *fakeStore) GetCategory(ctx context.Context, id int64, sc access.CategoryScope) (store.Category, error) {
	if f.getCategoryFn != nil {
		return f.getCategoryFn(ctx, id, sc)
	}
	return store.Category{}, sql.ErrNoRows
}

func (f *fakeStore) InsertCategory(ctx context.Context, c *store.Category) error {
	if f.insertCategoryFn != nil {
		return f.insertCategoryFn(ctx, c)
	}
	c.ID = 1
	return nil
}

func (f *fakeStore) UpdateCategory(ctx context.Context, c *store.Category) error {
	if f.updateCategoryFn != nil {
		return f.updateCategoryFn(ctx, c)
	}
	return nil
}

func (f *fakeStore) DeleteCategory(ctx context.Context, id int64, ownerID string) error {
	if f.deleteCategoryFn != nil {
		return f.deleteCategoryFn(ctx, id, ownerID)
	}
	return nil
}

func (f *fakeStore) ListNotes(ctx context.Context, sc access.NoteScope, filter store.NoteFilter) ([]store.Note, error) {
	if f.listNotesFn != nil {
		return f.listNotesFn(ctx, sc, filter)
	}
	return nil, nil
}

func (f *fakeStore) GetNote(ctx context.Context, id int64, sc access.NoteScope) (store.Note, error) {
	if f.getNoteFn != nil {
		return f.getNoteFn(ctx, id, sc)
	}
	return store.Note{}, sql.ErrNoRows
}

func (f *fakeStore) InsertNote(ctx context.Context, n *store.Note) error {
	if f.insertNoteFn != nil {
		return f.insertNoteFn(ctx, n)
	}
	n.ID = 1
	return nil
}

func (f *fakeStore) UpdateNote(ctx context.Context, n *store.Note) error {
	if f.updateNoteFn != nil {
		return f.updateNoteFn(ctx, n)
	}
	return nil
}

func (f *fakeStore) DeleteNote(ctx context.Context, id int64, sc access.NoteScope) error {
	if f.deleteNoteFn != nil {
		return f.deleteNoteFn(ctx, id, sc)
	}
	return nil
}

func (f *fakeStore) ListNoteIDsByCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	if f.listNoteIDsByCategoryFn != nil {
		return f.listNoteIDsByCategoryFn(ctx, categoryID)
	}
	return nil, nil
}

func (f *fakeStore) ListTemplates(ctx context.Context, sc access.TemplateScope) ([]store.Template, error) {
	if f.listTemplatesFn != nil {
		return f.listTemplatesFn(ctx, sc)
	}
	return nil, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, id int64, sc access.TemplateScope) (store.Template, error) {
	if f.getTemplateFn != nil {
		return f.getTemplateFn(ctx, id, sc)
	}
	return store.Template{}, sql.ErrNoRows
}

func (f *fakeStore) InsertTemplate(ctx context.Context, t *store.Template) error {
	if f.insertTemplateFn != nil {
		return f.insertTemplateFn(ctx, t)
	}
	t.ID = 1
	return nil
}

func (f *fakeStore) UpdateTemplate(ctx context.Context, t *store.Template) error {
	if f.updateTemplateFn != nil {
		return f.updateTemplateFn(ctx, t)
	}
	return nil
}

func (f *fakeStore) DeleteTemplate(ctx context.Context, id int64, ownerID string) error {
	if f.deleteTemplateFn != nil {
		return f.deleteTemplateFn(ctx, id, ownerID)
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeProvider struct {
	identities map[string]identity.Identity
}

func (f *fakeProvider) Resolve(_ context.Context, token string) (identity.Identity, error) {
	id, ok := f.identities[token]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return id, nil
}

type fakeUploader struct {
	uploadFn func(context.Context, []byte, string, string) (string, error)
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, data, contentType, objectPath)
	}
	return "https://blobs.example/" + objectPath, nil
}

func (f *fakeUploader) Ping(context.Context) error { return nil }

func newTestService(fs *fakeStore, provider identity.Provider, uploader *fakeUploader) *Service {
	svc := &Service{
		store:    fs,
		provider: provider,
		exporter: export.NewService(),
		log:      zerolog.Nop(),
	}
	if uploader != nil {
		svc.uploader = uploader
	}
	return svc
}

var (
	alice = access.Caller{UserID: "alice", Authenticated: true}
	admin = access.Caller{UserID: "admin", IsStaff: true, Authenticated: true}
)

func domainErrOf(t *testing.T, err error) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr
}

func TestCreateCategory_StampsOwner(t *testing.T) {
	var inserted store.Category
	fs := &fakeStore{
		insertCategoryFn: func(_ context.Context, c *store.Category) error {
			c.ID = 7
			inserted = *c
			return nil
		},
	}
	svc := newTestService(fs, nil, nil)

	payload, err := svc.CreateCategory(context.Background(), alice, CreateCategoryInput{Name: "  Work  ", Description: "projects"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if inserted.OwnerID != "alice" {
		t.Errorf("owner = %q, want alice", inserted.OwnerID)
	}
	if inserted.Name != "Work" {
		t.Errorf("name = %q, want trimmed Work", inserted.Name)
	}
	if payload.ID != 7 {
		t.Errorf("payload id = %d, want 7", payload.ID)
	}
}

func TestCreateCategory_NameRequired(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, nil)

	_, err := svc.CreateCategory(context.Background(), alice, CreateCategoryInput{Name: "   "})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != http.StatusUnprocessableEntity || domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("got %d %s, want 422 VALIDATION_ERROR", domainErr.Status, domainErr.Code)
	}
}

func TestUpdateCategory_MutationScopeIsOwnerOnly(t *testing.T) {
	var gotScope access.CategoryScope
	fs := &fakeStore{
		getCategoryFn: func(_ context.Context, _ int64, sc access.CategoryScope) (store.Category, error) {
			gotScope = sc
			return store.Category{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs, nil, nil)

	_, err := svc.UpdateCategory(context.Background(), admin, 3, UpdateCategoryInput{})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	// Staff-wide visibility must not bleed into mutation: even a staff caller
	// only mutates categories they own.
	if gotScope.IncludeStaffOwned {
		t.Errorf("mutation scope includes staff-owned categories")
	}
	if gotScope.OwnerID != "admin" {
		t.Errorf("mutation scope owner = %q, want admin", gotScope.OwnerID)
	}
}

func TestDeleteCategory_CascadeOrder(t *testing.T) {
	var calls []string
	fs := &fakeStore{
		getCategoryFn: func(context.Context, int64, access.CategoryScope) (store.Category, error) {
			return store.Category{ID: 4, OwnerID: "alice"}, nil
		},
		listNoteIDsByCategoryFn: func(context.Context, int64) ([]int64, error) {
			calls = append(calls, "snapshot")
			return []int64{10, 11}, nil
		},
		deleteCategoryFn: func(_ context.Context, id int64, ownerID string) error {
			calls = append(calls, "delete")
			if ownerID != "alice" {
				t.Errorf("delete owner = %q, want alice", ownerID)
			}
			return nil
		},
	}
	svc := newTestService(fs, nil, nil)

	if err := svc.DeleteCategory(context.Background(), alice, 4); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if strings.Join(calls, ",") != "snapshot,delete" {
		t.Errorf("call order = %v, want snapshot before delete", calls)
	}
}

func TestListNotes_CategorySentinels(t *testing.T) {
	tests := []struct {
		name          string
		param         *string
		uncategorized bool
		categoryID    int64
		wantErr       bool
	}{
		{"absent means no filter", nil, false, 0, false},
		{"zero", strPtr("0"), true, 0, false},
		{"null upper", strPtr("NULL"), true, 0, false},
		{"none mixed case", strPtr("None"), true, 0, false},
		{"empty", strPtr(""), true, 0, false},
		{"padded none", strPtr("  none  "), true, 0, false},
		{"exact id", strPtr("12"), false, 12, false},
		{"garbage", strPtr("abc"), false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFilter store.NoteFilter
			fs := &fakeStore{
				listNotesFn: func(_ context.Context, _ access.NoteScope, filter store.NoteFilter) ([]store.Note, error) {
					gotFilter = filter
					return nil, nil
				},
			}
			svc := newTestService(fs, nil, nil)

			_, err := svc.ListNotes(context.Background(), alice, tt.param, "")
			if tt.wantErr {
				domainErr := domainErrOf(t, err)
				if domainErr.Code != "VALIDATION_ERROR" {
					t.Errorf("code = %s, want VALIDATION_ERROR", domainErr.Code)
				}
				return
			}
			if err != nil {
				t.Fatalf("list notes: %v", err)
			}
			if gotFilter.Uncategorized != tt.uncategorized {
				t.Errorf("Uncategorized = %v, want %v", gotFilter.Uncategorized, tt.uncategorized)
			}
			if tt.categoryID == 0 && gotFilter.CategoryID != nil {
				t.Errorf("CategoryID = %v, want nil", *gotFilter.CategoryID)
			}
			if tt.categoryID != 0 && (gotFilter.CategoryID == nil || *gotFilter.CategoryID != tt.categoryID) {
				t.Errorf("CategoryID = %v, want %d", gotFilter.CategoryID, tt.categoryID)
			}
		})
	}
}

func TestCreateNote_CategoryMustBeVisible(t *testing.T) {
	fs := &fakeStore{} // every category lookup misses
	svc := newTestService(fs, nil, nil)

	_, err := svc.CreateNote(context.Background(), alice, CreateNoteInput{Title: "t", CategoryID: 9})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != http.StatusUnprocessableEntity || domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("got %d %s, want 422 VALIDATION_ERROR", domainErr.Status, domainErr.Code)
	}
}

func TestCreateNote_DocumentMustBeObject(t *testing.T) {
	fs := &fakeStore{
		getCategoryFn: func(context.Context, int64, access.CategoryScope) (store.Category, error) {
			return store.Category{ID: 9, Name: "Work"}, nil
		},
	}
	svc := newTestService(fs, nil, nil)

	_, err := svc.CreateNote(context.Background(), alice, CreateNoteInput{
		Title:      "t",
		CategoryID: 9,
		Document:   []byte(`[1,2,3]`),
	})
	domainErr := domainErrOf(t, err)
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %s, want VALIDATION_ERROR", domainErr.Code)
	}
}

func TestCreateNote_StampsOwnerAndDefaultsDocument(t *testing.T) {
	var inserted store.Note
	fs := &fakeStore{
		getCategoryFn: func(context.Context, int64, access.CategoryScope) (store.Category, error) {
			return store.Category{ID: 9, Name: "Work"}, nil
		},
		insertNoteFn: func(_ context.Context, n *store.Note) error {
			n.ID = 42
			inserted = *n
			return nil
		},
	}
	svc := newTestService(fs, nil, nil)

	payload, err := svc.CreateNote(context.Background(), alice, CreateNoteInput{Title: "Plan", CategoryID: 9})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if inserted.OwnerID != "alice" {
		t.Errorf("owner = %q, want alice", inserted.OwnerID)
	}
	if string(inserted.Document) != `{}` {
		t.Errorf("document = %s, want empty object", inserted.Document)
	}
	if payload.CategoryName != "Work" {
		t.Errorf("category name = %q, want Work", payload.CategoryName)
	}
}

func TestUpdateNote_NotFoundUnification(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, nil)

	title := "new"
	_, err := svc.UpdateNote(context.Background(), alice, 5, UpdateNoteInput{Title: &title})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows (mapped to 404), got %v", err)
	}
}

func TestCreateTemplate_PublicRequiresStaff(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, nil)

	_, err := svc.CreateTemplate(context.Background(), alice, CreateTemplateInput{Title: "t", IsPublic: true})
	domainErr := domainErrOf(t, err)
	if domainErr.Status != http.StatusForbidden || domainErr.Code != "PERMISSION_DENIED" {
		t.Errorf("got %d %s, want 403 PERMISSION_DENIED", domainErr.Status, domainErr.Code)
	}
}

func TestCreateTemplate_StaffPublishes(t *testing.T) {
	var inserted store.Template
	fs := &fakeStore{
		insertTemplateFn: func(_ context.Context, tpl *store.Template) error {
			tpl.ID = 3
			inserted = *tpl
			return nil
		},
	}
	svc := newTestService(fs, nil, nil)

	payload, err := svc.CreateTemplate(context.Background(), admin, CreateTemplateInput{Title: "Weekly", IsPublic: true})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if !inserted.IsPublic || !payload.IsPublic {
		t.Errorf("is_public not persisted for staff caller")
	}
	if inserted.OwnerID != "admin" {
		t.Errorf("owner = %q, want admin", inserted.OwnerID)
	}
}

func TestUpdateTemplate_PublishGateHeldOnUpdate(t *testing.T) {
	fs := &fakeStore{
		getTemplateFn: func(context.Context, int64, access.TemplateScope) (store.Template, error) {
			return store.Template{ID: 3, OwnerID: "alice"}, nil
		},
	}
	svc := newTestService(fs, nil, nil)

	public := true
	_, err := svc.UpdateTemplate(context.Background(), alice, 3, UpdateTemplateInput{IsPublic: &public})
	domainErr := domainErrOf(t, err)
	if domainErr.Code != "PERMISSION_DENIED" {
		t.Errorf("code = %s, want PERMISSION_DENIED", domainErr.Code)
	}
}

func TestUploadImage_BuildsOwnerScopedPath(t *testing.T) {
	var gotPath string
	fs := &fakeStore{
		getNoteFn: func(context.Context, int64, access.NoteScope) (store.Note, error) {
			return store.Note{ID: 5, OwnerID: "alice"}, nil
		},
	}
	uploader := &fakeUploader{
		uploadFn: func(_ context.Context, _ []byte, _, objectPath string) (string, error) {
			gotPath = objectPath
			return "https://blobs.example/" + objectPath, nil
		},
	}
	svc := newTestService(fs, nil, uploader)

	payload, err := svc.UploadImage(context.Background(), alice, 5, "photo.PNG", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(gotPath, "notes/alice/5/") {
		t.Errorf("object path = %q, want notes/alice/5/ prefix", gotPath)
	}
	if !strings.HasSuffix(gotPath, ".png") {
		t.Errorf("object path = %q, want lowercased .png suffix", gotPath)
	}
	if payload.PermanentURL == "" {
		t.Errorf("expected permanent url in payload")
	}
}

func TestUploadImage_FailureIsGeneric(t *testing.T) {
	fs := &fakeStore{
		getNoteFn: func(context.Context, int64, access.NoteScope) (store.Note, error) {
			return store.Note{ID: 5, OwnerID: "alice"}, nil
		},
	}
	uploader := &fakeUploader{
		uploadFn: func(context.Context, []byte, string, string) (string, error) {
			return "", errors.New("bucket on fire: secret details")
		},
	}
	svc := newTestService(fs, nil, uploader)

	_, err := svc.UploadImage(context.Background(), alice, 5, "photo.png", "image/png", []byte("data"))
	domainErr := domainErrOf(t, err)
	if domainErr.Status != http.StatusInternalServerError || domainErr.Code != "UPLOAD_FAILED" {
		t.Errorf("got %d %s, want 500 UPLOAD_FAILED", domainErr.Status, domainErr.Code)
	}
	if strings.Contains(domainErr.Message, "bucket") {
		t.Errorf("upstream detail leaked to caller: %q", domainErr.Message)
	}
}

func TestUploadImage_NoteMustBeOwned(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, &fakeUploader{})

	_, err := svc.UploadImage(context.Background(), alice, 5, "photo.png", "image/png", []byte("data"))
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteTemplate_CallerIsTheRequiredOwner(t *testing.T) {
	var gotOwner string
	fs := &fakeStore{
		deleteTemplateFn: func(_ context.Context, _ int64, ownerID string) error {
			gotOwner = ownerID
			if ownerID == "" {
				return sql.ErrNoRows
			}
			return nil
		},
	}
	svc := newTestService(fs, nil, nil)

	if err := svc.DeleteTemplate(context.Background(), alice, 3); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if gotOwner != "alice" {
		t.Errorf("owner passed to store = %q, want alice", gotOwner)
	}

	if err := svc.DeleteTemplate(context.Background(), access.Caller{}, 3); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("anonymous delete = %v, want sql.ErrNoRows via the store's owner guard", err)
	}
}

func strPtr(s string) *string { return &s }
