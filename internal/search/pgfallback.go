package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Blaisesa/notiq/internal/render"
)

// PgFallback implements Searcher with plain ILIKE matching in PostgreSQL.
// It is the degraded path when Meilisearch is down; ranking is just recency.
type PgFallback struct {
	db *sql.DB
}

func NewPgFallback(db *sql.DB) *PgFallback {
	return &PgFallback{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFallback) Healthy() bool {
	return true
}

func (p *PgFallback) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + likeEscape(q.Text) + "%"
	const where = `
		n.owner_id = $1 AND (
			n.title ILIKE $2
			OR COALESCE(c.name, '') ILIKE $2
			OR n.document::text ILIKE $2
		)`

	ctx := context.Background()

	var total int
	countSQL := fmt.Sprintf(`
		SELECT count(*)
		FROM notes n
		LEFT JOIN categories c ON c.id = n.category_id
		WHERE %s`, where)
	if err := p.db.QueryRowContext(ctx, countSQL, q.OwnerID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("fallback search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT n.id, n.title, COALESCE(c.name, ''), n.document
		FROM notes n
		LEFT JOIN categories c ON c.id = n.category_id
		WHERE %s
		ORDER BY n.updated_at DESC, n.id DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.OwnerID, pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("fallback search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var document json.RawMessage
		if err := rows.Scan(&r.ID, &r.Title, &r.CategoryName, &document); err != nil {
			return nil, 0, fmt.Errorf("fallback search scan: %w", err)
		}
		r.Snippet = snippet(render.PlainText(render.Doc(document)), 30)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every note as an index record, for full reindexing.
func (p *PgFallback) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT n.id, n.owner_id, n.title, COALESCE(c.name, ''), n.document
		FROM notes n
		LEFT JOIN categories c ON c.id = n.category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes for reindex: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var rec NoteRecord
		var document json.RawMessage
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.CategoryName, &document); err != nil {
			return nil, fmt.Errorf("scan note for reindex: %w", err)
		}
		rec.Body = render.PlainText(render.Doc(document))
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes for reindex: %w", err)
	}
	return records, nil
}

func likeEscape(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

func snippet(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "…"
}
