package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"noteszone/internal/access"
	"noteszone/internal/fakestore"
	"noteszone/internal/note/model"
	noteservice "noteszone/internal/note/service"
	userservice "noteszone/internal/user/service"
	"noteszone/pkg/token"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveEnv struct {
	wsURL  string
	notes  *fakestore.Notes
	svc    *noteservice.NoteService
	rooms  *LocalRegistry
	tokens *token.Manager
	drops  chan DropReason
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	notes := fakestore.NewNotes()
	users := fakestore.NewUsers()
	users.Add("alice", "Alice", "alice@example.com")
	users.Add("bob", "Bob", "bob@example.com")
	notes.SetEmail("bob", "bob@example.com")

	tokens := token.NewManager("test-secret", time.Hour)
	auth := userservice.NewAuthService(users, tokens)

	rooms := NewLocalRegistry()
	hub := NewHub(notes, rooms, DefaultOptions())
	drops := make(chan DropReason, 16)
	hub.SetDropHook(func(reason DropReason, _ string, _ token.Identity, _ error) { drops <- reason })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, NewGateway(auth), w, r)
	}))
	t.Cleanup(server.Close)

	return &liveEnv{
		wsURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		notes:  notes,
		svc:    noteservice.NewNoteService(notes, auth, hub),
		rooms:  rooms,
		tokens: tokens,
		drops:  drops,
	}
}

func (e *liveEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	credential, err := e.tokens.Issue(token.Identity{ID: userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL+"?token="+credential, nil)
	require.NoError(t, err, "%s failed to connect", userID)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, mustFrame(t, event, data)))
}

// readEnvelope reads one frame, failing the test after a second.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "failed to read frame")
	var env Envelope
	require.NoError(t, json.Unmarshal(p, &env))
	return env
}

// probe proves nothing else is queued for conn: the next frame must be the
// error reply to a join of an unknown note.
func probe(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeEvent(t, conn, EventJoinNote, NoteRef{NoteID: "probe"})
	assert.Equal(t, MsgNoteNotFound, decodeError(t, readEnvelope(t, conn)))
}

func TestServeWsRejectsMissingOrBadCredential(t *testing.T) {
	env := newLiveEnv(t)

	for _, url := range []string{env.wsURL, env.wsURL + "?token=forged"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestServeWsAcceptsAuthorizationHeader(t *testing.T) {
	env := newLiveEnv(t)
	note, err := env.svc.Create(context.Background(), "alice", model.CreateNoteRequest{Title: "t"})
	require.NoError(t, err)

	credential, err := env.tokens.Issue(token.Identity{ID: "alice"})
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + credential}}
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	writeEvent(t, conn, EventJoinNote, NoteRef{NoteID: note.ID})
	init := readEnvelope(t, conn)
	assert.Equal(t, EventServerNoteInit, init.Event)
	assert.Equal(t, access.Owner, decodeNote(t, init).Access)
}

func TestCollaborationScenario(t *testing.T) {
	env := newLiveEnv(t)
	ctx := context.Background()

	note, err := env.svc.Create(ctx, "alice", model.CreateNoteRequest{})
	require.NoError(t, err)
	assert.Equal(t, "alice", note.OwnerID)
	assert.Empty(t, note.SharedWith)

	_, err = env.svc.Share(ctx, note.ID, "alice", model.ShareRequest{Email: "bob@example.com", Role: "viewer"})
	require.NoError(t, err)

	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	writeEvent(t, alice, EventJoinNote, NoteRef{NoteID: note.ID})
	assert.Equal(t, access.Owner, decodeNote(t, readEnvelope(t, alice)).Access)
	writeEvent(t, bob, EventJoinNote, NoteRef{NoteID: note.ID})
	assert.Equal(t, access.Viewer, decodeNote(t, readEnvelope(t, bob)).Access)

	// A viewer edit changes nothing and reaches nobody.
	writeEvent(t, bob, EventClientNoteUpdate, map[string]string{"noteId": note.ID, "content": "sneaky"})
	select {
	case reason := <-env.drops:
		assert.Equal(t, DropForbidden, reason)
	case <-time.After(time.Second):
		t.Fatal("viewer update was not reported as dropped")
	}
	stored, err := env.notes.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "", stored.Content)
	probe(t, bob)
	probe(t, alice)

	_, err = env.svc.Share(ctx, note.ID, "alice", model.ShareRequest{Email: "bob@example.com", Role: "editor"})
	require.NoError(t, err)

	writeEvent(t, bob, EventClientNoteUpdate, map[string]string{"noteId": note.ID, "content": "hello"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		update := readEnvelope(t, conn)
		require.Equal(t, EventServerNoteUpdate, update.Event)
		p := decodeNote(t, update)
		assert.Equal(t, "hello", p.Content)
		assert.Equal(t, access.Editor, p.Access)
	}

	require.NoError(t, env.svc.Delete(ctx, note.ID, "alice"))
	assert.Equal(t, 0, env.rooms.Size(note.ID))

	writeEvent(t, bob, EventJoinNote, NoteRef{NoteID: note.ID})
	assert.Equal(t, MsgNoteNotFound, decodeError(t, readEnvelope(t, bob)))
}

func TestRestUpdateReachesLiveMembers(t *testing.T) {
	env := newLiveEnv(t)
	ctx := context.Background()
	note, err := env.svc.Create(ctx, "alice", model.CreateNoteRequest{})
	require.NoError(t, err)
	_, err = env.svc.Share(ctx, note.ID, "alice", model.ShareRequest{Email: "bob@example.com", Role: "viewer"})
	require.NoError(t, err)

	bob := env.dial(t, "bob")
	writeEvent(t, bob, EventJoinNote, NoteRef{NoteID: note.ID})
	readEnvelope(t, bob)

	title := "from rest"
	_, err = env.svc.Update(ctx, note.ID, "alice", model.Patch{Title: &title})
	require.NoError(t, err)

	update := readEnvelope(t, bob)
	assert.Equal(t, EventServerNoteUpdate, update.Event)
	p := decodeNote(t, update)
	assert.Equal(t, title, p.Title)
	assert.Equal(t, access.Owner, p.Access)
}

func TestClosedConnectionLeavesRooms(t *testing.T) {
	env := newLiveEnv(t)
	ctx := context.Background()
	note, err := env.svc.Create(ctx, "alice", model.CreateNoteRequest{})
	require.NoError(t, err)
	_, err = env.svc.Share(ctx, note.ID, "alice", model.ShareRequest{Email: "bob@example.com", Role: "editor"})
	require.NoError(t, err)

	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	for _, conn := range []*websocket.Conn{alice, bob} {
		writeEvent(t, conn, EventJoinNote, NoteRef{NoteID: note.ID})
		readEnvelope(t, conn)
	}
	require.Equal(t, 2, env.rooms.Size(note.ID))

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool { return env.rooms.Size(note.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	writeEvent(t, alice, EventClientNoteUpdate, map[string]string{"noteId": note.ID, "content": "solo"})
	assert.Equal(t, "solo", decodeNote(t, readEnvelope(t, alice)).Content)
}
