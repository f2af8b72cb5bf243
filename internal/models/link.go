package models

// Link is a persisted directed edge from a note to another note or to an
// unresolved title. ToNoteID and ToPath are nil when the target is unresolved.
type Link struct {
	ID         int64   `json:"id,omitempty"`
	FromNoteID string  `json:"from_note_id"`
	ToNoteID   *string `json:"to_note_id"`
	ToTitle    string  `json:"to_title"`
	ToPath     *string `json:"to_path"`
	LinkText   string  `json:"link_text"`
	Position   int     `json:"position"`
}

// Resolved reports whether the link points at a known note.
func (l Link) Resolved() bool {
	return l.ToNoteID != nil
}

// SameTarget reports whether two links resolve to the same note and path.
func (l Link) SameTarget(toNoteID, toPath *string) bool {
	return eqPtr(l.ToNoteID, toNoteID) && eqPtr(l.ToPath, toPath)
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
