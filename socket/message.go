package socket

import (
	"encoding/json"

	"noteszone/internal/note/model"
)

const (
	EventJoinNote         = "join_note"
	EventLeaveNote        = "leave_note"
	EventClientNoteUpdate = "client_note_update"

	EventServerNoteInit   = "server_note_init"
	EventServerNoteUpdate = "server_note_update"
	EventErrorMessage     = "error_message"
)

const (
	MsgNoteNotFound = "Note not found"
	MsgNoAccess     = "No access to this note"
	MsgJoinFailed   = "Join failed"
)

// Envelope is the JSON frame exchanged over the websocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type NoteRef struct {
	NoteID string `json:"noteId"`
}

// NoteUpdate is the client_note_update payload.
type NoteUpdate struct {
	NoteID string
	Patch  model.Patch
}

func (u *NoteUpdate) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var ref NoteRef
	if id, ok := raw["noteId"]; ok {
		// A non-string noteId is treated as absent.
		_ = json.Unmarshal(id, &ref.NoteID)
	}
	u.NoteID = ref.NoteID
	u.Patch = model.PatchFromRaw(raw)
	return nil
}

func (u NoteUpdate) MarshalJSON() ([]byte, error) {
	out := map[string]string{"noteId": u.NoteID}
	if u.Patch.Title != nil {
		out["title"] = *u.Patch.Title
	}
	if u.Patch.Content != nil {
		out["content"] = *u.Patch.Content
	}
	return json.Marshal(out)
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// Encode builds a frame for event with data marshalled as its payload.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
