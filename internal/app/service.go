package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Blaisesa/notiq/internal/access"
	"github.com/Blaisesa/notiq/internal/blob"
	"github.com/Blaisesa/notiq/internal/export"
	"github.com/Blaisesa/notiq/internal/identity"
	"github.com/Blaisesa/notiq/internal/render"
	"github.com/Blaisesa/notiq/internal/search"
	"github.com/Blaisesa/notiq/internal/store"
)

// categoryNullTokens are the values accepted by the category_id filter that
// mean "notes with no category". Matched case-insensitively.
var categoryNullTokens = map[string]struct{}{
	"0":    {},
	"null": {},
	"none": {},
	"":     {},
}

type dataStore interface {
	UpsertUser(ctx context.Context, user store.User) (store.User, error)

	ListCategories(ctx context.Context, sc access.CategoryScope) ([]store.Category, error)
	GetCategory(ctx context.Context, id int64, sc access.CategoryScope) (store.Category, error)
	InsertCategory(ctx context.Context, c *store.Category) error
	UpdateCategory(ctx context.Context, c *store.Category) error
	DeleteCategory(ctx context.Context, id int64, ownerID string) error

	ListNotes(ctx context.Context, sc access.NoteScope, filter store.NoteFilter) ([]store.Note, error)
	GetNote(ctx context.Context, id int64, sc access.NoteScope) (store.Note, error)
	InsertNote(ctx context.Context, n *store.Note) error
	UpdateNote(ctx context.Context, n *store.Note) error
	DeleteNote(ctx context.Context, id int64, sc access.NoteScope) error
	ListNoteIDsByCategory(ctx context.Context, categoryID int64) ([]int64, error)

	ListTemplates(ctx context.Context, sc access.TemplateScope) ([]store.Template, error)
	GetTemplate(ctx context.Context, id int64, sc access.TemplateScope) (store.Template, error)
	InsertTemplate(ctx context.Context, t *store.Template) error
	UpdateTemplate(ctx context.Context, t *store.Template) error
	DeleteTemplate(ctx context.Context, id int64, ownerID string) error

	Ping(ctx context.Context) error
}

// Service holds the domain operations behind the HTTP surface.
type Service struct {
	store    dataStore
	provider identity.Provider
	search   *search.Service
	uploader blob.Uploader
	exporter *export.Service
	log      zerolog.Logger
}

func NewService(
	store dataStore,
	provider identity.Provider,
	searchSvc *search.Service,
	uploader blob.Uploader,
	exporter *export.Service,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:    store,
		provider: provider,
		search:   searchSvc,
		uploader: uploader,
		exporter: exporter,
		log:      log.With().Str("component", "service").Logger(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ResolveCaller exchanges a bearer token for a caller. The identity snapshot
// is upserted so ownership joins always see the provider's latest staff flag.
func (s *Service) ResolveCaller(ctx context.Context, token string) (access.Caller, identity.Identity, error) {
	id, err := s.provider.Resolve(ctx, token)
	if err != nil {
		return access.Caller{}, identity.Identity{}, err
	}
	user, err := s.store.UpsertUser(ctx, store.User{
		ID:          id.UserID,
		DisplayName: id.DisplayName,
		IsStaff:     id.IsStaff,
	})
	if err != nil {
		return access.Caller{}, identity.Identity{}, fmt.Errorf("refresh identity: %w", err)
	}
	return access.Caller{
		UserID:        user.ID,
		IsStaff:       user.IsStaff,
		Authenticated: true,
	}, id, nil
}

// Payloads

type CategoryPayload struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	OwnerID      string    `json:"owner_id"`
	OwnerIsStaff bool      `json:"owner_is_staff"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type NotePayload struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	OwnerID      string          `json:"owner_id"`
	Document     json.RawMessage `json:"document"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type TemplatePayload struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	CategoryID *int64          `json:"category_id"`
	OwnerID    string          `json:"owner_id"`
	Document   json.RawMessage `json:"document"`
	IsPublic   bool            `json:"is_public"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type UploadPayload struct {
	PermanentURL string `json:"permanent_url"`
}

func categoryPayload(c store.Category) CategoryPayload {
	return CategoryPayload{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		OwnerID:      c.OwnerID,
		OwnerIsStaff: c.OwnerIsStaff,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func notePayload(n store.Note) NotePayload {
	document := n.Document
	if len(document) == 0 {
		document = json.RawMessage(`{}`)
	}
	return NotePayload{
		ID:           n.ID,
		Title:        n.Title,
		CategoryID:   n.CategoryID,
		CategoryName: n.CategoryName,
		OwnerID:      n.OwnerID,
		Document:     document,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func templatePayload(t store.Template) TemplatePayload {
	document := t.Document
	if len(document) == 0 {
		document = json.RawMessage(`{}`)
	}
	return TemplatePayload{
		ID:         t.ID,
		Title:      t.Title,
		CategoryID: t.CategoryID,
		OwnerID:    t.OwnerID,
		Document:   document,
		IsPublic:   t.IsPublic,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// Categories

type CreateCategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateCategoryInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Service) ListCategories(ctx context.Context, caller access.Caller) ([]CategoryPayload, error) {
	categories, err := s.store.ListCategories(ctx, access.Categories(caller))
	if err != nil {
		return nil, err
	}
	payload := make([]CategoryPayload, 0, len(categories))
	for _, c := range categories {
		payload = append(payload, categoryPayload(c))
	}
	return payload, nil
}

func (s *Service) GetCategory(ctx context.Context, caller access.Caller, id int64) (CategoryPayload, error) {
	c, err := s.store.GetCategory(ctx, id, access.Categories(caller))
	if err != nil {
		return CategoryPayload{}, err
	}
	return categoryPayload(c), nil
}

func (s *Service) CreateCategory(ctx context.Context, caller access.Caller, input CreateCategoryInput) (CategoryPayload, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return CategoryPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	c := store.Category{
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		OwnerID:      caller.UserID,
		OwnerIsStaff: caller.IsStaff,
	}
	if err := s.store.InsertCategory(ctx, &c); err != nil {
		return CategoryPayload{}, err
	}
	return categoryPayload(c), nil
}

func (s *Service) UpdateCategory(ctx context.Context, caller access.Caller, id int64, input UpdateCategoryInput) (CategoryPayload, error) {
	c, err := s.store.GetCategory(ctx, id, access.CategoriesMutable(caller))
	if err != nil {
		return CategoryPayload{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return CategoryPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
		}
		c.Name = name
	}
	if input.Description != nil {
		c.Description = strings.TrimSpace(*input.Description)
	}
	if err := s.store.UpdateCategory(ctx, &c); err != nil {
		return CategoryPayload{}, err
	}
	return categoryPayload(c), nil
}

// DeleteCategory removes a caller-owned category and, through the store's
// cascade, every note referencing it regardless of the note's owner. Note IDs
// are snapshotted first so the search index can be cleaned up afterwards.
func (s *Service) DeleteCategory(ctx context.Context, caller access.Caller, id int64) error {
	if _, err := s.store.GetCategory(ctx, id, access.CategoriesMutable(caller)); err != nil {
		return err
	}
	noteIDs, err := s.store.ListNoteIDsByCategory(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, id, caller.UserID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteNotes(noteIDs)
	}
	return nil
}

// Notes

type CreateNoteInput struct {
	Title      string          `json:"title"`
	CategoryID int64           `json:"category_id"`
	Document   json.RawMessage `json:"document"`
}

type UpdateNoteInput struct {
	Title      *string         `json:"title"`
	CategoryID *int64          `json:"category_id"`
	Document   json.RawMessage `json:"document"`
}

// ListNotes returns the caller's notes, most recently updated first.
// categoryParam distinguishes absent (nil, no filter) from present; a null
// token filters to uncategorized notes, anything else must be an id.
func (s *Service) ListNotes(ctx context.Context, caller access.Caller, categoryParam *string, searchTerm string) ([]NotePayload, error) {
	filter := store.NoteFilter{Search: strings.TrimSpace(searchTerm)}
	if categoryParam != nil {
		token := strings.ToLower(strings.TrimSpace(*categoryParam))
		if _, isNull := categoryNullTokens[token]; isNull {
			filter.Uncategorized = true
		} else {
			id, err := strconv.ParseInt(token, 10, 64)
			if err != nil {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category_id must be an integer or a null token", nil)
			}
			filter.CategoryID = &id
		}
	}

	notes, err := s.store.ListNotes(ctx, access.Notes(caller), filter)
	if err != nil {
		return nil, err
	}
	payload := make([]NotePayload, 0, len(notes))
	for _, n := range notes {
		payload = append(payload, notePayload(n))
	}
	return payload, nil
}

func (s *Service) GetNote(ctx context.Context, caller access.Caller, id int64) (NotePayload, error) {
	n, err := s.store.GetNote(ctx, id, access.Notes(caller))
	if err != nil {
		return NotePayload{}, err
	}
	return notePayload(n), nil
}

func (s *Service) CreateNote(ctx context.Context, caller access.Caller, input CreateNoteInput) (NotePayload, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return NotePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.CategoryID == 0 {
		return NotePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category_id is required", nil)
	}
	category, err := s.store.GetCategory(ctx, input.CategoryID, access.Categories(caller))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category not found", nil)
		}
		return NotePayload{}, err
	}

	document, err := normalizeDocument(input.Document)
	if err != nil {
		return NotePayload{}, err
	}

	n := store.Note{
		OwnerID:      caller.UserID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Title:        title,
		Document:     document,
	}
	if err := s.store.InsertNote(ctx, &n); err != nil {
		return NotePayload{}, err
	}
	s.indexNote(n)
	return notePayload(n), nil
}

func (s *Service) UpdateNote(ctx context.Context, caller access.Caller, id int64, input UpdateNoteInput) (NotePayload, error) {
	n, err := s.store.GetNote(ctx, id, access.Notes(caller))
	if err != nil {
		return NotePayload{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return NotePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		}
		n.Title = title
	}
	if input.CategoryID != nil && *input.CategoryID != n.CategoryID {
		category, err := s.store.GetCategory(ctx, *input.CategoryID, access.Categories(caller))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category not found", nil)
			}
			return NotePayload{}, err
		}
		n.CategoryID = category.ID
		n.CategoryName = category.Name
	}
	if input.Document != nil {
		document, err := normalizeDocument(input.Document)
		if err != nil {
			return NotePayload{}, err
		}
		n.Document = document
	}

	if err := s.store.UpdateNote(ctx, &n); err != nil {
		return NotePayload{}, err
	}
	s.indexNote(n)
	return notePayload(n), nil
}

func (s *Service) DeleteNote(ctx context.Context, caller access.Caller, id int64) error {
	if err := s.store.DeleteNote(ctx, id, access.Notes(caller)); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteNote(id)
	}
	return nil
}

// Templates

type CreateTemplateInput struct {
	Title      string          `json:"title"`
	CategoryID *int64          `json:"category_id"`
	Document   json.RawMessage `json:"document"`
	IsPublic   bool            `json:"is_public"`
}

type UpdateTemplateInput struct {
	Title      *string         `json:"title"`
	CategoryID *int64          `json:"category_id"`
	Document   json.RawMessage `json:"document"`
	IsPublic   *bool           `json:"is_public"`
}

func (s *Service) ListTemplates(ctx context.Context, caller access.Caller) ([]TemplatePayload, error) {
	templates, err := s.store.ListTemplates(ctx, access.Templates(caller))
	if err != nil {
		return nil, err
	}
	payload := make([]TemplatePayload, 0, len(templates))
	for _, t := range templates {
		payload = append(payload, templatePayload(t))
	}
	return payload, nil
}

func (s *Service) GetTemplate(ctx context.Context, caller access.Caller, id int64) (TemplatePayload, error) {
	t, err := s.store.GetTemplate(ctx, id, access.Templates(caller))
	if err != nil {
		return TemplatePayload{}, err
	}
	return templatePayload(t), nil
}

func (s *Service) CreateTemplate(ctx context.Context, caller access.Caller, input CreateTemplateInput) (TemplatePayload, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return TemplatePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	// Publishing is never downgraded silently; a non-staff request for a
	// public template is an explicit denial.
	if input.IsPublic && !access.CanPublishTemplates(caller) {
		return TemplatePayload{}, domainError(http.StatusForbidden, "PERMISSION_DENIED", "only staff may publish public templates", nil)
	}
	document, err := normalizeDocument(input.Document)
	if err != nil {
		return TemplatePayload{}, err
	}

	t := store.Template{
		OwnerID:    caller.UserID,
		Title:      title,
		Document:   document,
		CategoryID: input.CategoryID,
		IsPublic:   input.IsPublic,
	}
	if err := s.store.InsertTemplate(ctx, &t); err != nil {
		return TemplatePayload{}, err
	}
	return templatePayload(t), nil
}

func (s *Service) UpdateTemplate(ctx context.Context, caller access.Caller, id int64, input UpdateTemplateInput) (TemplatePayload, error) {
	t, err := s.store.GetTemplate(ctx, id, access.TemplatesMutable(caller))
	if err != nil {
		return TemplatePayload{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return TemplatePayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		}
		t.Title = title
	}
	if input.CategoryID != nil {
		t.CategoryID = input.CategoryID
	}
	if input.Document != nil {
		document, err := normalizeDocument(input.Document)
		if err != nil {
			return TemplatePayload{}, err
		}
		t.Document = document
	}
	if input.IsPublic != nil {
		if *input.IsPublic && !access.CanPublishTemplates(caller) {
			return TemplatePayload{}, domainError(http.StatusForbidden, "PERMISSION_DENIED", "only staff may publish public templates", nil)
		}
		t.IsPublic = *input.IsPublic
	}

	if err := s.store.UpdateTemplate(ctx, &t); err != nil {
		return TemplatePayload{}, err
	}
	return templatePayload(t), nil
}

// DeleteTemplate passes the caller through as the required owner; the store
// reports a miss for anyone else, anonymous callers included.
func (s *Service) DeleteTemplate(ctx context.Context, caller access.Caller, id int64) error {
	return s.store.DeleteTemplate(ctx, id, caller.UserID)
}

// Uploads

// UploadImage relays a file to the blob store under the caller's folder and
// returns the permanent URL. Nothing is persisted locally, so a failed upload
// leaves no partial state; it is logged and reported generically.
func (s *Service) UploadImage(ctx context.Context, caller access.Caller, noteID int64, filename, contentType string, data []byte) (UploadPayload, error) {
	note, err := s.store.GetNote(ctx, noteID, access.Notes(caller))
	if err != nil {
		return UploadPayload{}, err
	}
	if len(data) == 0 {
		return UploadPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
	}
	if s.uploader == nil {
		s.log.Error().Int64("note_id", note.ID).Msg("upload requested but no blob store configured")
		return UploadPayload{}, domainError(http.StatusInternalServerError, "UPLOAD_FAILED", "Upload failed", nil)
	}

	ext := strings.ToLower(path.Ext(filename))
	objectPath := fmt.Sprintf("notes/%s/%d/%s%s", caller.UserID, note.ID, randomHex(8), ext)

	url, err := s.uploader.Upload(ctx, data, contentType, objectPath)
	if err != nil {
		s.log.Error().Err(err).Int64("note_id", note.ID).Str("object", objectPath).Msg("blob upload failed")
		return UploadPayload{}, domainError(http.StatusInternalServerError, "UPLOAD_FAILED", "Upload failed", nil)
	}
	return UploadPayload{PermanentURL: url}, nil
}

// Export

func (s *Service) ExportNote(ctx context.Context, caller access.Caller, authorName string, noteID int64, format export.Format) (*export.Result, error) {
	n, err := s.store.GetNote(ctx, noteID, access.Notes(caller))
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(export.NoteData{
		Title:        n.Title,
		CategoryName: n.CategoryName,
		Author:       authorName,
		UpdatedAt:    n.UpdatedAt,
		ContentHTML:  render.HTML(render.Doc(n.Document)),
	}, format)
}

// Search

func (s *Service) SearchNotes(ctx context.Context, caller access.Caller, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:    text,
		OwnerID: caller.UserID,
		Limit:   limit,
		Offset:  offset,
	})
}

// Helpers

// normalizeDocument enforces the only document rule there is: the payload is
// a JSON object. An empty payload becomes the empty object.
func normalizeDocument(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`), nil
	}
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "document must be a JSON object", nil)
	}
	return json.RawMessage(trimmed), nil
}

func (s *Service) indexNote(n store.Note) {
	if s.search == nil {
		return
	}
	s.search.IndexNote(search.NoteRecord{
		ID:           n.ID,
		OwnerID:      n.OwnerID,
		Title:        n.Title,
		CategoryName: n.CategoryName,
		Body:         render.PlainText(render.Doc(n.Document)),
	})
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
