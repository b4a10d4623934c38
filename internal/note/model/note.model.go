package model

import (
	"encoding/json"

	"noteszone/internal/access"
	"noteszone/store"
)

// NoteView is a note together with the caller's access level.
type NoteView struct {
	*store.Note
	Access access.Level `json:"access"`
}

type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Patch carries the optional title and content of an edit. Fields that are
// absent or not JSON strings are left nil.
type Patch struct {
	Title   *string
	Content *string
}

func (p *Patch) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = PatchFromRaw(raw)
	return nil
}

func (p Patch) MarshalJSON() ([]byte, error) {
	out := map[string]string{}
	if p.Title != nil {
		out["title"] = *p.Title
	}
	if p.Content != nil {
		out["content"] = *p.Content
	}
	return json.Marshal(out)
}

func (p Patch) Fields() store.NoteFields {
	return store.NoteFields{Title: p.Title, Content: p.Content}
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Content == nil
}

// PatchFromRaw extracts the text-valued title and content keys of a decoded object.
func PatchFromRaw(raw map[string]json.RawMessage) Patch {
	return Patch{
		Title:   stringField(raw, "title"),
		Content: stringField(raw, "content"),
	}
}

func stringField(raw map[string]json.RawMessage, key string) *string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(v, &decoded); err != nil {
		return nil
	}
	s, ok := decoded.(string)
	if !ok {
		return nil
	}
	return &s
}

type ShareRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=viewer editor"`
}

type UnshareRequest struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
}
