package service

import (
	"context"
	"errors"
	"net/http"

	"noteszone/internal/access"
	"noteszone/internal/note/model"
	"noteszone/internal/note/repository"
	"noteszone/pkg/apperr"
	"noteszone/store"

	"github.com/go-playground/validator/v10"
)

type NoteStore interface {
	Create(ctx context.Context, ownerID, title, content string) (*store.Note, error)
	Get(ctx context.Context, id string) (*store.Note, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*store.Note, error)
	ListSharedWith(ctx context.Context, userID string) ([]*store.Note, error)
	Update(ctx context.Context, id string, fields store.NoteFields) (*store.Note, error)
	Delete(ctx context.Context, id string) error
	SetShare(ctx context.Context, id, userID string, role store.Role) (*store.Note, error)
	RemoveShare(ctx context.Context, id, userID string) (*store.Note, error)
}

// UserDirectory resolves share targets. Errors are apperr values.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*store.User, error)
}

// Rooms receives note lifecycle changes made outside the realtime channel.
type Rooms interface {
	NoteUpdated(ctx context.Context, note *store.Note, level access.Level)
	NoteDeleted(noteID string)
	AccessRevoked(noteID, userID string)
}

type NoteService struct {
	notes    NoteStore
	users    UserDirectory
	rooms    Rooms
	validate *validator.Validate
}

func NewNoteService(notes NoteStore, users UserDirectory, rooms Rooms) *NoteService {
	return &NoteService{notes: notes, users: users, rooms: rooms, validate: validator.New()}
}

func (s *NoteService) ListOwned(ctx context.Context, userID string) ([]*store.Note, error) {
	notes, err := s.notes.ListByOwner(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return notes, nil
}

func (s *NoteService) ListShared(ctx context.Context, userID string) ([]*store.Note, error) {
	notes, err := s.notes.ListSharedWith(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return notes, nil
}

func (s *NoteService) Create(ctx context.Context, userID string, req model.CreateNoteRequest) (*store.Note, error) {
	note, err := s.notes.Create(ctx, userID, req.Title, req.Content)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return note, nil
}

func (s *NoteService) Get(ctx context.Context, id, userID string) (*model.NoteView, error) {
	note, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	level := access.Resolve(note, userID)
	if level == access.None {
		return nil, apperr.Forbidden("No access")
	}
	return &model.NoteView{Note: note, Access: level}, nil
}

// Update applies the text fields of patch for owners and editors and pushes
// the saved note to the note's room.
func (s *NoteService) Update(ctx context.Context, id, userID string, patch model.Patch) (*store.Note, error) {
	note, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	level := access.Resolve(note, userID)
	if !level.CanEdit() {
		return nil, apperr.Forbidden("No access")
	}
	if patch.Empty() {
		return note, nil
	}
	fresh, err := s.notes.Update(ctx, id, patch.Fields())
	if err != nil {
		return nil, translate(err)
	}
	s.rooms.NoteUpdated(ctx, fresh, level)
	return fresh, nil
}

func (s *NoteService) Delete(ctx context.Context, id, userID string) error {
	note, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !access.HasAccess(note, userID, access.Owner) {
		return apperr.Forbidden("No access")
	}
	if err := s.notes.Delete(ctx, id); err != nil {
		return translate(err)
	}
	s.rooms.NoteDeleted(id)
	return nil
}

func (s *NoteService) Share(ctx context.Context, id, userID string, req model.ShareRequest) (*store.Note, error) {
	note, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.HasAccess(note, userID, access.Owner) {
		return nil, apperr.Forbidden("Owner only")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Validation("Email and role (viewer|editor) required")
	}

	target, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if target.ID == note.OwnerID {
		return nil, apperr.Conflict("Owner already has full access")
	}

	updated, err := s.notes.SetShare(ctx, id, target.ID, store.Role(req.Role))
	if err != nil {
		return nil, translate(err)
	}
	return updated, nil
}

// Unshare removes a share entry by user id, or by email when no id is given.
func (s *NoteService) Unshare(ctx context.Context, id, userID string, req model.UnshareRequest) (*store.Note, error) {
	note, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.HasAccess(note, userID, access.Owner) {
		return nil, apperr.Forbidden("Owner only")
	}
	if req.Email == "" && req.UserID == "" {
		return nil, apperr.Validation("Email or userId required")
	}

	targetID := req.UserID
	if targetID == "" {
		target, err := s.users.FindByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		targetID = target.ID
	}

	updated, err := s.notes.RemoveShare(ctx, id, targetID)
	if errors.Is(err, repository.ErrNotShared) {
		return nil, apperr.Conflict("Target user not shared").WithStatus(http.StatusNotFound)
	}
	if err != nil {
		return nil, translate(err)
	}
	s.rooms.AccessRevoked(id, targetID)
	return updated, nil
}

func (s *NoteService) load(ctx context.Context, id string) (*store.Note, error) {
	note, err := s.notes.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return note, nil
}

func translate(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Note not found")
	}
	return apperr.Internal(err)
}
