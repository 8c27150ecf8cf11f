// Package access builds the visibility and mutation predicates for every
// record type. Handlers and the store both consume the same scope values, so
// the ownership rules live in exactly one place and are independent of the
// storage backend.
package access

// Caller is the identity snapshot a request acts under. A zero Caller is an
// anonymous, unauthenticated request.
type Caller struct {
	UserID        string
	IsStaff       bool
	Authenticated bool
}

// NoteScope bounds note reads and writes. Notes are never shared: the owner
// is the only user who can see or touch them.
type NoteScope struct {
	OwnerID string
}

// Notes returns the note scope for the caller.
func Notes(c Caller) NoteScope {
	return NoteScope{OwnerID: c.UserID}
}

// Allows reports whether a note owned by ownerID falls inside the scope.
func (s NoteScope) Allows(ownerID string) bool {
	return s.OwnerID != "" && ownerID == s.OwnerID
}

// CategoryScope bounds category access. Categories owned by staff users are
// readable by everyone; mutation is always owner-only.
type CategoryScope struct {
	OwnerID           string
	IncludeStaffOwned bool
}

// Categories returns the read scope for the caller: own categories plus any
// staff-owned ones. Each category matches at most once, so a staff caller's
// own rows never double-count.
func Categories(c Caller) CategoryScope {
	return CategoryScope{OwnerID: c.UserID, IncludeStaffOwned: true}
}

// CategoriesMutable returns the mutation scope: owner only.
func CategoriesMutable(c Caller) CategoryScope {
	return CategoryScope{OwnerID: c.UserID}
}

// Allows reports whether a category with the given owner falls inside the
// scope.
func (s CategoryScope) Allows(ownerID string, ownerIsStaff bool) bool {
	if s.OwnerID != "" && ownerID == s.OwnerID {
		return true
	}
	return s.IncludeStaffOwned && ownerIsStaff
}

// TemplateScope bounds template access. Public templates are world-readable,
// private ones are owner-only.
type TemplateScope struct {
	OwnerID       string
	IncludePublic bool
}

// Templates returns the read scope for the caller. Anonymous callers get the
// public subset only.
func Templates(c Caller) TemplateScope {
	if !c.Authenticated {
		return TemplateScope{IncludePublic: true}
	}
	return TemplateScope{OwnerID: c.UserID, IncludePublic: true}
}

// TemplatesMutable returns the mutation scope: owner only. A public template
// someone else published is visible but never writable.
func TemplatesMutable(c Caller) TemplateScope {
	return TemplateScope{OwnerID: c.UserID}
}

// Allows reports whether a template falls inside the scope.
func (s TemplateScope) Allows(ownerID string, isPublic bool) bool {
	if s.OwnerID != "" && ownerID == s.OwnerID {
		return true
	}
	return s.IncludePublic && isPublic
}

// CanPublishTemplates reports whether the caller may set is_public on a
// template. Requesting publication without this right is a permission error,
// never a silent downgrade.
func CanPublishTemplates(c Caller) bool {
	return c.Authenticated && c.IsStaff
}
