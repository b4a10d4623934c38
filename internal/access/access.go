// Package access resolves the permission tier an identity holds on a note.
package access

import "noteszone/store"

type Level string

const (
	None   Level = ""
	Owner  Level = "owner"
	Editor Level = "editor"
	Viewer Level = "viewer"
)

// CanEdit reports whether the level may change title and content.
func (l Level) CanEdit() bool {
	return l == Owner || l == Editor
}

// Resolve returns the access level of userID on note. Owner wins over any share entry.
func Resolve(note *store.Note, userID string) Level {
	if note == nil || userID == "" {
		return None
	}
	if note.OwnerID == userID {
		return Owner
	}
	for _, sw := range note.SharedWith {
		if sw.UserID != userID {
			continue
		}
		if sw.Role == store.RoleEditor {
			return Editor
		}
		return Viewer
	}
	return None
}

func HasAccess(note *store.Note, userID string, allowed ...Level) bool {
	level := Resolve(note, userID)
	if level == None {
		return false
	}
	for _, a := range allowed {
		if a == level {
			return true
		}
	}
	return false
}
