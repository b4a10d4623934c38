package socket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"noteszone/internal/access"
	"noteszone/internal/note/model"
	"noteszone/internal/note/repository"
	"noteszone/pkg/logger"
	"noteszone/pkg/token"
	"noteszone/store"

	"go.uber.org/zap"
)

type NoteStore interface {
	Get(ctx context.Context, id string) (*store.Note, error)
	Update(ctx context.Context, id string, fields store.NoteFields) (*store.Note, error)
}

type DropReason string

const (
	DropMissingNoteID DropReason = "missing_note_id"
	DropNotFound      DropReason = "not_found"
	DropForbidden     DropReason = "forbidden"
	DropStoreError    DropReason = "store_error"
)

// DropHook observes client_note_update events that were discarded without a reply.
type DropHook func(reason DropReason, noteID string, identity token.Identity, err error)

func logDrop(reason DropReason, noteID string, identity token.Identity, err error) {
	fields := []zap.Field{
		zap.String("reason", string(reason)),
		zap.String("note", noteID),
		zap.String("user", identity.ID),
	}
	if reason == DropStoreError {
		logger.Log.Error("note update dropped", append(fields, zap.Error(err))...)
		return
	}
	logger.Log.Warn("note update dropped", fields...)
}

// Hub routes realtime events between connections and note rooms.
type Hub struct {
	notes  NoteStore
	rooms  Registry
	opts   Options
	onDrop DropHook
}

func NewHub(notes NoteStore, rooms Registry, opts Options) *Hub {
	if opts.PingPeriod <= 0 && opts.PongWait > 0 {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	defaults := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaults.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaults.PongWait
		opts.PingPeriod = defaults.PingPeriod
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = defaults.EventTimeout
	}
	return &Hub{notes: notes, rooms: rooms, opts: opts, onDrop: logDrop}
}

// SetDropHook replaces the default logging hook. A nil hook disables it.
func (h *Hub) SetDropHook(hook DropHook) {
	if hook == nil {
		hook = func(DropReason, string, token.Identity, error) {}
	}
	h.onDrop = hook
}

// HandleMessage decodes one inbound frame and runs it to completion.
func (h *Hub) HandleMessage(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Sugar.Warnf("malformed frame from %s: %v", c.UserID(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.EventTimeout)
	defer cancel()

	switch env.Event {
	case EventJoinNote:
		h.Join(ctx, c, decodeRef(env.Data))
	case EventLeaveNote:
		h.Leave(c, decodeRef(env.Data))
	case EventClientNoteUpdate:
		var update NoteUpdate
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &update); err != nil {
				logger.Sugar.Debugf("bad update payload from %s: %v", c.UserID(), err)
			}
		}
		h.Update(ctx, c, update)
	default:
		logger.Sugar.Debugf("ignoring event %q from %s", env.Event, c.UserID())
	}
}

func decodeRef(data json.RawMessage) string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ""
	}
	var id string
	_ = json.Unmarshal(raw["noteId"], &id)
	return id
}

// Join subscribes c to noteID after an access check and sends it the current note.
func (h *Hub) Join(ctx context.Context, c *Client, noteID string) {
	if noteID == "" {
		h.sendError(c, MsgNoteNotFound)
		return
	}
	note, err := h.notes.Get(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		h.sendError(c, MsgNoteNotFound)
		return
	}
	if err != nil {
		logger.Log.Error("join failed", zap.String("note", noteID), zap.String("user", c.UserID()), zap.Error(err))
		h.sendError(c, MsgJoinFailed)
		return
	}

	level := access.Resolve(note, c.UserID())
	if level == access.None {
		h.sendError(c, MsgNoAccess)
		return
	}

	msg, err := Encode(EventServerNoteInit, model.NoteView{Note: note, Access: level})
	if err != nil {
		logger.Log.Error("encode note init", zap.Error(err))
		h.sendError(c, MsgJoinFailed)
		return
	}
	h.rooms.Join(noteID, c)
	if !c.Deliver(msg) {
		logger.Sugar.Warnf("send buffer full for %s on join %s", c.UserID(), noteID)
	}
}

func (h *Hub) Leave(c *Client, noteID string) {
	if noteID == "" {
		return
	}
	h.rooms.Leave(noteID, c)
}

// Update applies an edit from c and broadcasts the stored note to the room.
// Rejected edits produce no reply and are reported to the drop hook.
func (h *Hub) Update(ctx context.Context, c *Client, update NoteUpdate) {
	identity := c.Identity()
	if update.NoteID == "" {
		h.onDrop(DropMissingNoteID, "", identity, nil)
		return
	}
	note, err := h.notes.Get(ctx, update.NoteID)
	if errors.Is(err, repository.ErrNotFound) {
		h.onDrop(DropNotFound, update.NoteID, identity, err)
		return
	}
	if err != nil {
		h.onDrop(DropStoreError, update.NoteID, identity, err)
		return
	}

	level := access.Resolve(note, identity.ID)
	if !level.CanEdit() {
		h.onDrop(DropForbidden, update.NoteID, identity, nil)
		return
	}

	fresh := note
	if !update.Patch.Empty() {
		fresh, err = h.notes.Update(ctx, update.NoteID, update.Patch.Fields())
		if errors.Is(err, repository.ErrNotFound) {
			h.onDrop(DropNotFound, update.NoteID, identity, err)
			return
		}
		if err != nil {
			h.onDrop(DropStoreError, update.NoteID, identity, err)
			return
		}
	}

	// Every member receives the sender's access level.
	h.broadcastNote(ctx, fresh, level)
}

// Disconnect removes c from all rooms before its send queue is closed.
func (h *Hub) Disconnect(c *Client) {
	rooms := h.rooms.LeaveAll(c)
	c.closeSend()
	logger.Log.Info("websocket disconnected", zap.String("user", c.UserID()), zap.Int("rooms", len(rooms)))
}

// NoteUpdated broadcasts a note changed through REST.
func (h *Hub) NoteUpdated(ctx context.Context, note *store.Note, level access.Level) {
	h.broadcastNote(ctx, note, level)
}

// NoteDeleted removes every member from the note's room.
func (h *Hub) NoteDeleted(noteID string) {
	h.evict(noteID, "")
}

// AccessRevoked removes userID's connections from the note's room.
func (h *Hub) AccessRevoked(noteID, userID string) {
	h.evict(noteID, userID)
}

func (h *Hub) evict(noteID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.rooms.Evict(ctx, noteID, userID); err != nil {
		logger.Log.Error("evict room members", zap.String("note", noteID), zap.String("user", userID), zap.Error(err))
	}
}

func (h *Hub) broadcastNote(ctx context.Context, note *store.Note, level access.Level) {
	msg, err := Encode(EventServerNoteUpdate, model.NoteView{Note: note, Access: level})
	if err != nil {
		logger.Log.Error("encode note update", zap.Error(err))
		return
	}
	if err := h.rooms.Broadcast(ctx, note.ID, msg); err != nil {
		logger.Log.Error("broadcast note update", zap.String("note", note.ID), zap.Error(err))
	}
}

func (h *Hub) sendError(c *Client, message string) {
	msg, err := Encode(EventErrorMessage, ErrorMessage{Message: message})
	if err != nil {
		return
	}
	c.Deliver(msg)
}
