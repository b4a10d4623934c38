// Package fakestore provides in-memory note and user stores for tests.
package fakestore

import (
	"context"
	"sort"
	"sync"
	"time"

	noterepo "noteszone/internal/note/repository"
	userrepo "noteszone/internal/user/repository"
	"noteszone/store"

	"github.com/google/uuid"
)

// Notes mirrors the semantics of repository.NoteRepository on a map.
type Notes struct {
	mu      sync.Mutex
	notes   map[string]*store.Note
	emails  map[string]string
	clock   time.Time
	updates int

	// Err, when set, is returned by every call.
	Err error
}

func NewNotes() *Notes {
	return &Notes{
		notes:  make(map[string]*store.Note),
		emails: make(map[string]string),
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// SetEmail records the email shown on share entries for userID.
func (n *Notes) SetEmail(userID, email string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails[userID] = email
}

// Updates returns how many successful Update calls were made.
func (n *Notes) Updates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates
}

func (n *Notes) SetErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Err = err
}

func (n *Notes) tick() time.Time {
	n.clock = n.clock.Add(time.Second)
	return n.clock
}

func (n *Notes) Create(_ context.Context, ownerID, title, content string) (*store.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	now := n.tick()
	note := &store.Note{
		ID: uuid.NewString(), Title: title, Content: content, OwnerID: ownerID,
		SharedWith: []store.Share{}, CreatedAt: now, UpdatedAt: now,
	}
	n.notes[note.ID] = note
	return clone(note), nil
}

func (n *Notes) Get(_ context.Context, id string) (*store.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	note, ok := n.notes[id]
	if !ok {
		return nil, noterepo.ErrNotFound
	}
	return clone(note), nil
}

func (n *Notes) ListByOwner(_ context.Context, ownerID string) ([]*store.Note, error) {
	return n.filter(func(note *store.Note) bool { return note.OwnerID == ownerID })
}

func (n *Notes) ListSharedWith(_ context.Context, userID string) ([]*store.Note, error) {
	return n.filter(func(note *store.Note) bool {
		for _, sw := range note.SharedWith {
			if sw.UserID == userID {
				return true
			}
		}
		return false
	})
}

func (n *Notes) Update(_ context.Context, id string, fields store.NoteFields) (*store.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	note, ok := n.notes[id]
	if !ok {
		return nil, noterepo.ErrNotFound
	}
	if fields.Title != nil {
		note.Title = *fields.Title
	}
	if fields.Content != nil {
		note.Content = *fields.Content
	}
	note.UpdatedAt = n.tick()
	n.updates++
	return clone(note), nil
}

func (n *Notes) Delete(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	if _, ok := n.notes[id]; !ok {
		return noterepo.ErrNotFound
	}
	delete(n.notes, id)
	return nil
}

func (n *Notes) SetShare(_ context.Context, id, userID string, role store.Role) (*store.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	note, ok := n.notes[id]
	if !ok {
		return nil, noterepo.ErrNotFound
	}
	for i := range note.SharedWith {
		if note.SharedWith[i].UserID == userID {
			note.SharedWith[i].Role = role
			note.UpdatedAt = n.tick()
			return clone(note), nil
		}
	}
	note.SharedWith = append(note.SharedWith, store.Share{UserID: userID, Email: n.emails[userID], Role: role})
	note.UpdatedAt = n.tick()
	return clone(note), nil
}

func (n *Notes) RemoveShare(_ context.Context, id, userID string) (*store.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	note, ok := n.notes[id]
	if !ok {
		return nil, noterepo.ErrNotFound
	}
	kept := note.SharedWith[:0]
	for _, sw := range note.SharedWith {
		if sw.UserID != userID {
			kept = append(kept, sw)
		}
	}
	if len(kept) == len(note.SharedWith) {
		return nil, noterepo.ErrNotShared
	}
	note.SharedWith = kept
	note.UpdatedAt = n.tick()
	return clone(note), nil
}

func (n *Notes) filter(keep func(*store.Note) bool) ([]*store.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	out := []*store.Note{}
	for _, note := range n.notes {
		if keep(note) {
			out = append(out, clone(note))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func clone(note *store.Note) *store.Note {
	c := *note
	c.SharedWith = append([]store.Share{}, note.SharedWith...)
	return &c
}

// Users is an in-memory user store keyed by id.
type Users struct {
	mu    sync.Mutex
	users map[string]*store.User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]*store.User)}
}

// Add stores a user with the given id, name and email and returns it.
func (u *Users) Add(id, name, email string) *store.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := &store.User{ID: id, Name: name, Email: email, CreatedAt: time.Now()}
	u.users[id] = user
	return user
}

func (u *Users) Create(_ context.Context, user *store.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == user.Email {
			return userrepo.ErrEmailTaken
		}
	}
	user.CreatedAt = time.Now()
	u.users[user.ID] = user
	return nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (*store.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (u *Users) FindByID(_ context.Context, id string) (*store.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, userrepo.ErrNotFound
}
