package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Blaisesa/notiq/internal/access"
)

// PostgresStore persists records and applies access scopes as SQL. Callers
// build scopes with the access package; a lookup outside the scope reports
// sql.ErrNoRows, indistinguishable from a record that does not exist.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser refreshes the stored identity snapshot. The staff flag must
// track the provider, since staff-owned categories are world-visible.
func (s *PostgresStore) UpsertUser(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (id, display_name, is_staff)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			is_staff = EXCLUDED.is_staff,
			updated_at = NOW()
		RETURNING id, display_name, is_staff, created_at, updated_at
	`
	var out User
	err := s.db.QueryRowContext(ctx, query, user.ID, user.DisplayName, user.IsStaff).
		Scan(&out.ID, &out.DisplayName, &out.IsStaff, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

// categoryWhere compiles a category scope to a WHERE fragment over the
// categories/users join. next is the first free placeholder index.
func categoryWhere(sc access.CategoryScope, next int) (string, []any, int) {
	switch {
	case sc.OwnerID != "" && sc.IncludeStaffOwned:
		return fmt.Sprintf("(c.owner_id = $%d OR u.is_staff)", next), []any{sc.OwnerID}, next + 1
	case sc.OwnerID != "":
		return fmt.Sprintf("c.owner_id = $%d", next), []any{sc.OwnerID}, next + 1
	case sc.IncludeStaffOwned:
		return "u.is_staff", nil, next
	default:
		return "FALSE", nil, next
	}
}

func (s *PostgresStore) ListCategories(ctx context.Context, sc access.CategoryScope) ([]Category, error) {
	where, args, _ := categoryWhere(sc, 1)
	query := fmt.Sprintf(`
		SELECT c.id, c.name, c.description, c.owner_id, u.is_staff, c.created_at, c.updated_at
		FROM categories c
		JOIN users u ON u.id = c.owner_id
		WHERE %s
		ORDER BY c.name, c.id
	`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.OwnerID, &c.OwnerIsStaff, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id int64, sc access.CategoryScope) (Category, error) {
	where, args, next := categoryWhere(sc, 1)
	query := fmt.Sprintf(`
		SELECT c.id, c.name, c.description, c.owner_id, u.is_staff, c.created_at, c.updated_at
		FROM categories c
		JOIN users u ON u.id = c.owner_id
		WHERE %s AND c.id = $%d
	`, where, next)
	args = append(args, id)

	var c Category
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ID, &c.Name, &c.Description, &c.OwnerID, &c.OwnerIsStaff, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

func (s *PostgresStore) InsertCategory(ctx context.Context, c *Category) error {
	const query = `
		INSERT INTO categories (name, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, c.Name, c.Description, c.OwnerID).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, c *Category) error {
	const query = `
		UPDATE categories
		SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3 AND owner_id = $4
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, c.Name, c.Description, c.ID, c.OwnerID).Scan(&c.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

// DeleteCategory removes a category owned by ownerID. Dependent notes go
// with it through the ON DELETE CASCADE constraint, so the cascade is a
// single atomic statement.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func noteWhere(sc access.NoteScope, next int) (string, []any, int) {
	if sc.OwnerID == "" {
		return "FALSE", nil, next
	}
	return fmt.Sprintf("n.owner_id = $%d", next), []any{sc.OwnerID}, next + 1
}

// escapeLike escapes LIKE metacharacters so search terms match literally.
func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// listNotesQuery compiles the scope and filter into the listing query.
// Ordering is most recently updated first, with the id as a stable tiebreak
// for rows written in the same instant.
func listNotesQuery(sc access.NoteScope, filter NoteFilter) (string, []any) {
	where, args, next := noteWhere(sc, 1)
	conditions := []string{where}

	switch {
	case filter.Uncategorized:
		conditions = append(conditions, "n.category_id IS NULL")
	case filter.CategoryID != nil:
		conditions = append(conditions, fmt.Sprintf("n.category_id = $%d", next))
		args = append(args, *filter.CategoryID)
		next++
	}

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conditions = append(conditions,
			fmt.Sprintf("(n.title ILIKE $%d OR COALESCE(c.name, '') ILIKE $%d)", next, next))
		args = append(args, pattern)
		next++
	}

	query := fmt.Sprintf(`
		SELECT n.id, n.owner_id, n.category_id, COALESCE(c.name, ''), n.title, n.document, n.created_at, n.updated_at
		FROM notes n
		LEFT JOIN categories c ON c.id = n.category_id
		WHERE %s
		ORDER BY n.updated_at DESC, n.id DESC
	`, strings.Join(conditions, " AND "))
	return query, args
}

func (s *PostgresStore) ListNotes(ctx context.Context, sc access.NoteScope, filter NoteFilter) ([]Note, error) {
	query, args := listNotesQuery(sc, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.CategoryID, &n.CategoryName, &n.Title, &n.Document, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// ListNoteIDsByCategory returns the ids of every note referencing the
// category, across owners. Used to clean up the search index before a
// category cascade.
func (s *PostgresStore) ListNoteIDsByCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM notes WHERE category_id = $1`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list note ids by category: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list note ids by category: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, id int64, sc access.NoteScope) (Note, error) {
	where, args, next := noteWhere(sc, 1)
	query := fmt.Sprintf(`
		SELECT n.id, n.owner_id, n.category_id, COALESCE(c.name, ''), n.title, n.document, n.created_at, n.updated_at
		FROM notes n
		LEFT JOIN categories c ON c.id = n.category_id
		WHERE %s AND n.id = $%d
	`, where, next)
	args = append(args, id)

	var n Note
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&n.ID, &n.OwnerID, &n.CategoryID, &n.CategoryName, &n.Title, &n.Document, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, n *Note) error {
	const query = `
		INSERT INTO notes (owner_id, category_id, title, document)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, n.OwnerID, n.CategoryID, n.Title, []byte(n.Document)).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// UpdateNote writes a note back, gated on ownership. updated_at refreshes on
// every write; last writer wins.
func (s *PostgresStore) UpdateNote(ctx context.Context, n *Note) error {
	const query = `
		UPDATE notes
		SET title = $1, category_id = $2, document = $3, updated_at = NOW()
		WHERE id = $4 AND owner_id = $5
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, n.Title, n.CategoryID, []byte(n.Document), n.ID, n.OwnerID).
		Scan(&n.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, id int64, sc access.NoteScope) error {
	if sc.OwnerID == "" {
		return sql.ErrNoRows
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND owner_id = $2`, id, sc.OwnerID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func templateWhere(sc access.TemplateScope, next int) (string, []any, int) {
	switch {
	case sc.OwnerID != "" && sc.IncludePublic:
		return fmt.Sprintf("(t.is_public OR t.owner_id = $%d)", next), []any{sc.OwnerID}, next + 1
	case sc.OwnerID != "":
		return fmt.Sprintf("t.owner_id = $%d", next), []any{sc.OwnerID}, next + 1
	case sc.IncludePublic:
		return "t.is_public", nil, next
	default:
		return "FALSE", nil, next
	}
}

func (s *PostgresStore) ListTemplates(ctx context.Context, sc access.TemplateScope) ([]Template, error) {
	where, args, _ := templateWhere(sc, 1)
	query := fmt.Sprintf(`
		SELECT t.id, t.owner_id, t.title, t.document, t.category_id, t.is_public, t.created_at, t.updated_at
		FROM templates t
		WHERE %s
		ORDER BY t.updated_at DESC, t.id DESC
	`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Document, &t.CategoryID, &t.IsPublic, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id int64, sc access.TemplateScope) (Template, error) {
	where, args, next := templateWhere(sc, 1)
	query := fmt.Sprintf(`
		SELECT t.id, t.owner_id, t.title, t.document, t.category_id, t.is_public, t.created_at, t.updated_at
		FROM templates t
		WHERE %s AND t.id = $%d
	`, where, next)
	args = append(args, id)

	var t Template
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&t.ID, &t.OwnerID, &t.Title, &t.Document, &t.CategoryID, &t.IsPublic, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *PostgresStore) InsertTemplate(ctx context.Context, t *Template) error {
	const query = `
		INSERT INTO templates (owner_id, title, document, category_id, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, t.OwnerID, t.Title, []byte(t.Document), t.CategoryID, t.IsPublic).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTemplate(ctx context.Context, t *Template) error {
	const query = `
		UPDATE templates
		SET title = $1, document = $2, category_id = $3, is_public = $4, updated_at = NOW()
		WHERE id = $5 AND owner_id = $6
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, t.Title, []byte(t.Document), t.CategoryID, t.IsPublic, t.ID, t.OwnerID).
		Scan(&t.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id int64, ownerID string) error {
	if ownerID == "" {
		return sql.ErrNoRows
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
