package store

import "time"

// Role is the permission stored on a share entry.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Share struct {
	UserID string `json:"user"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// Note is the canonical persisted document. SharedWith never contains OwnerID
// and holds at most one entry per user.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	OwnerID    string    `json:"owner"`
	SharedWith []Share   `json:"sharedWith"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NoteFields holds the mutable fields of an update. Nil fields are left unchanged.
type NoteFields struct {
	Title   *string
	Content *string
}
