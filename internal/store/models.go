package store

import (
	"encoding/json"
	"time"
)

// User is a snapshot of what the identity provider asserted about a caller.
// Rows are upserted per request; the service never creates identities.
type User struct {
	ID          string
	DisplayName string
	IsStaff     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Category struct {
	ID          int64
	Name        string
	Description string
	OwnerID     string
	// OwnerIsStaff is joined from users; staff-owned categories are visible
	// to every user.
	OwnerIsStaff bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Note struct {
	ID         int64
	OwnerID    string
	CategoryID int64
	// CategoryName is joined for list responses and search.
	CategoryName string
	Title        string
	Document     json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Template's CategoryID is a loose integer reference with no foreign key.
// It may dangle after the category is deleted; templates are deliberately
// kept out of the category cascade.
type Template struct {
	ID         int64
	OwnerID    string
	Title      string
	Document   json.RawMessage
	CategoryID *int64
	IsPublic   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NoteFilter narrows a note listing within the caller's visible set.
type NoteFilter struct {
	// CategoryID filters to one category when set.
	CategoryID *int64
	// Uncategorized filters to notes with no category. The schema requires a
	// category, so this set is empty by construction; the filter exists
	// because the API accepts the sentinel.
	Uncategorized bool
	// Search is a case-insensitive substring matched against the note title
	// or the category name.
	Search string
}
