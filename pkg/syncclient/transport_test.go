package syncclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"noteszone/config"
	"noteszone/internal/access"
	"noteszone/internal/fakestore"
	"noteszone/internal/note/model"
	noteservice "noteszone/internal/note/service"
	userservice "noteszone/internal/user/service"
	"noteszone/pkg/token"
	"noteszone/router"
	"noteszone/socket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveServer struct {
	url   string
	notes *noteservice.NoteService
	auth  *userservice.AuthService
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	notes := fakestore.NewNotes()
	auth := userservice.NewAuthService(fakestore.NewUsers(), token.NewManager("sync-secret", time.Hour))
	hub := socket.NewHub(notes, socket.NewLocalRegistry(), socket.DefaultOptions())
	svc := noteservice.NewNoteService(notes, auth, hub)

	srv := httptest.NewServer(router.Setup(router.Deps{
		Auth: auth, Notes: svc, Hub: hub,
		CORS: config.CORSConfig{AllowedOrigins: "*"},
	}))
	t.Cleanup(srv.Close)
	return &liveServer{url: srv.URL, notes: svc, auth: auth}
}

func (s *liveServer) register(t *testing.T, name string) *userservice.AuthResult {
	t.Helper()
	result, err := s.auth.Register(context.Background(), name, strings.ToLower(name)+"@example.com", "secret123")
	require.NoError(t, err)
	return result
}

func (s *liveServer) controller(t *testing.T, noteID, credential string, opts Options) *Controller {
	t.Helper()
	c := New(noteID,
		WSDialer{URL: "ws" + strings.TrimPrefix(s.url, "http") + "/ws", Token: credential},
		HTTPNoteAPI{BaseURL: s.url, Token: credential},
		opts,
	)
	c.Start(context.Background())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHTTPNoteAPI(t *testing.T) {
	s := newLiveServer(t)
	alice := s.register(t, "Alice")
	bob := s.register(t, "Bob")
	note, err := s.notes.Create(context.Background(), alice.User.ID, model.CreateNoteRequest{Title: "Plan"})
	require.NoError(t, err)

	api := HTTPNoteAPI{BaseURL: s.url + "/", Token: alice.Token}
	content := "written over rest"
	require.NoError(t, api.Put(context.Background(), note.ID, model.Patch{Content: &content}))

	view, err := api.Get(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan", view.Title)
	assert.Equal(t, content, view.Content)
	assert.Equal(t, access.Owner, view.Access)

	_, err = HTTPNoteAPI{BaseURL: s.url, Token: bob.Token}.Get(context.Background(), note.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "No access", apiErr.Message)
}

func TestWSDialerRejectsBadCredential(t *testing.T) {
	s := newLiveServer(t)
	_, err := WSDialer{URL: "ws" + strings.TrimPrefix(s.url, "http") + "/ws", Token: "forged"}.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestControllersSyncThroughServer(t *testing.T) {
	s := newLiveServer(t)
	alice := s.register(t, "Alice")
	bob := s.register(t, "Bob")
	ctx := context.Background()

	note, err := s.notes.Create(ctx, alice.User.ID, model.CreateNoteRequest{})
	require.NoError(t, err)
	_, err = s.notes.Share(ctx, note.ID, alice.User.ID, model.ShareRequest{Email: "bob@example.com", Role: "editor"})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	bobOpts := fastOptions()
	bobOpts.OnNote = func(v model.NoteView) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v.Content)
	}

	ac := s.controller(t, note.ID, alice.Token, fastOptions())
	bc := s.controller(t, note.ID, bob.Token, bobOpts)
	require.Eventually(t, func() bool {
		return ac.State() == StateConnected && bc.State() == StateConnected && ac.Editable() && bc.Editable()
	}, 2*time.Second, 10*time.Millisecond)

	// The joins have been answered once both sides hold an init.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	hello := "hello"
	require.NoError(t, ac.Edit(model.Patch{Content: &hello}))
	require.Eventually(t, func() bool {
		n := bc.Note()
		return n != nil && n.Content == "hello"
	}, 2*time.Second, 10*time.Millisecond)

	view, err := s.notes.Get(ctx, note.ID, bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", view.Content)
}
