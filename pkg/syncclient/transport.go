package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"noteszone/internal/note/model"
	"noteszone/pkg/response"
	"noteszone/socket"

	"github.com/gorilla/websocket"
)

// WSDialer connects to the realtime endpoint, passing the credential as
// the token query parameter.
type WSDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

func (d WSDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", d.Token)
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Host, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) Send(event string, data interface{}) error {
	msg, err := socket.Encode(event, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) Receive() (socket.Envelope, error) {
	var env socket.Envelope
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return env, err
	}
	err = json.Unmarshal(raw, &env)
	return env, err
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("notes api: status %d", e.Status)
	}
	return fmt.Sprintf("notes api: %s (status %d)", e.Message, e.Status)
}

// HTTPNoteAPI reads and writes notes through the REST API rooted at BaseURL.
type HTTPNoteAPI struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (a HTTPNoteAPI) Get(ctx context.Context, noteID string) (*model.NoteView, error) {
	var view model.NoteView
	if err := a.do(ctx, http.MethodGet, noteID, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a HTTPNoteAPI) Put(ctx context.Context, noteID string, patch model.Patch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return a.do(ctx, http.MethodPut, noteID, body, nil)
}

func (a HTTPNoteAPI) do(ctx context.Context, method, noteID string, body []byte, out interface{}) error {
	endpoint := strings.TrimRight(a.BaseURL, "/") + "/api/notes/" + url.PathEscape(noteID)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg response.Message
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
