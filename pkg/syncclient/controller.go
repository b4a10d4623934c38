// Package syncclient keeps a local copy of one note in sync with the server.
// While connected it uses the realtime channel; while disconnected it polls
// the REST API and writes edits through it.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"noteszone/internal/note/model"
	"noteszone/pkg/logger"
	"noteszone/socket"
)

var (
	ErrReadOnly = errors.New("syncclient: note is read-only for this user")
	ErrClosed   = errors.New("syncclient: controller closed")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// Conn is a live realtime channel.
type Conn interface {
	Send(event string, data interface{}) error
	// Receive blocks until the next frame or a connection error.
	Receive() (socket.Envelope, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// NoteAPI is the durable-store fallback used while disconnected.
type NoteAPI interface {
	Get(ctx context.Context, noteID string) (*model.NoteView, error)
	Put(ctx context.Context, noteID string, patch model.Patch) error
}

type Options struct {
	PollInterval   time.Duration
	Debounce       time.Duration
	ReconnectDelay time.Duration
	RequestTimeout time.Duration

	// OnNote is called with every note received from the server.
	OnNote func(model.NoteView)
	// OnError receives error messages from the server or a failed poll.
	OnError func(message string)
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   5 * time.Second,
		Debounce:       400 * time.Millisecond,
		ReconnectDelay: time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Controller syncs a single note. It must be started with Start and torn
// down with Close.
type Controller struct {
	noteID string
	dialer Dialer
	api    NoteAPI
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	started  bool
	conn     Conn
	note     *model.NoteView
	pending  model.Patch
	debounce *time.Timer
	// pollCancel is set while the interval poll runs. Cancelling it also
	// discards the result of a poll request still in flight.
	pollCancel context.CancelFunc
}

func New(noteID string, dialer Dialer, api NoteAPI, opts Options) *Controller {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaults.ReconnectDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	return &Controller{
		noteID: noteID,
		dialer: dialer,
		api:    api,
		opts:   opts,
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}
}

// Start loads the note and begins connecting. It returns immediately.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.startPolling()
	c.mu.Unlock()

	go c.run()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Polling reports whether the interval poll is active.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollCancel != nil
}

// Note returns the most recent note, or nil before the first load.
func (c *Controller) Note() *model.NoteView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.note == nil {
		return nil
	}
	return cloneView(c.note)
}

// Editable reports whether the caller may edit the note.
func (c *Controller) Editable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.note != nil && c.note.Access.CanEdit()
}

// Edit applies patch locally and schedules it for sending. Edits within the
// debounce window are merged per field, the latest value winning.
func (c *Controller) Edit(patch model.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	if c.note == nil || !c.note.Access.CanEdit() {
		return ErrReadOnly
	}
	if patch.Empty() {
		return nil
	}

	if patch.Title != nil {
		c.pending.Title = patch.Title
		c.note.Title = *patch.Title
	}
	if patch.Content != nil {
		c.pending.Content = patch.Content
		c.note.Content = *patch.Content
	}

	if c.debounce == nil {
		c.debounce = time.AfterFunc(c.opts.Debounce, c.flush)
	} else {
		c.debounce.Reset(c.opts.Debounce)
	}
	return nil
}

// Close sends any pending edit, leaves the note, closes the connection and
// stops every timer. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.mu.Unlock()

	c.flush()

	c.mu.Lock()
	c.state = StateClosed
	c.stopPolling()
	conn := c.conn
	c.conn = nil
	started := c.started
	c.mu.Unlock()

	var err error
	if conn != nil {
		if sendErr := conn.Send(socket.EventLeaveNote, socket.NoteRef{NoteID: c.noteID}); sendErr != nil {
			logger.Sugar.Debugf("syncclient: leave %s: %v", c.noteID, sendErr)
		}
		err = conn.Close()
	}
	if started {
		c.cancel()
		<-c.done
	}
	return err
}

func (c *Controller) run() {
	defer close(c.done)
	c.refresh(c.ctx)

	for {
		conn, err := c.dialer.Dial(c.ctx)
		if err == nil {
			if c.enterConnected(conn) {
				c.receive(conn)
				c.enterDisconnected(conn)
			} else {
				conn.Close()
			}
		} else {
			logger.Sugar.Debugf("syncclient: dial: %v", err)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Controller) enterConnected(conn Conn) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = StateConnected
	c.conn = conn
	c.stopPolling()
	c.mu.Unlock()

	if err := conn.Send(socket.EventJoinNote, socket.NoteRef{NoteID: c.noteID}); err != nil {
		logger.Sugar.Debugf("syncclient: join %s: %v", c.noteID, err)
	}
	return true
}

func (c *Controller) enterDisconnected(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
	c.state = StateDisconnected
	c.startPolling()
}

func (c *Controller) receive(conn Conn) {
	for {
		env, err := conn.Receive()
		if err != nil {
			return
		}
		switch env.Event {
		case socket.EventServerNoteInit, socket.EventServerNoteUpdate:
			var view model.NoteView
			if err := json.Unmarshal(env.Data, &view); err != nil || view.Note == nil {
				logger.Sugar.Debugf("syncclient: bad note payload: %v", err)
				continue
			}
			c.replace(c.ctx, &view)
		case socket.EventErrorMessage:
			var msg socket.ErrorMessage
			_ = json.Unmarshal(env.Data, &msg)
			c.reportError(msg.Message)
		}
	}
}

// refresh fetches the note over REST. The result is dropped once scope is done.
func (c *Controller) refresh(scope context.Context) {
	ctx, cancel := context.WithTimeout(scope, c.opts.RequestTimeout)
	defer cancel()
	view, err := c.api.Get(ctx, c.noteID)
	if err != nil {
		if scope.Err() == nil {
			c.reportError(err.Error())
		}
		return
	}
	c.replace(scope, view)
}

// replace stores view wholesale, dropping any local edit not yet echoed back.
func (c *Controller) replace(scope context.Context, view *model.NoteView) {
	c.mu.Lock()
	if c.state == StateClosed || scope.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.note = cloneView(view)
	onNote := c.opts.OnNote
	c.mu.Unlock()

	if onNote != nil {
		onNote(*cloneView(view))
	}
}

func (c *Controller) reportError(message string) {
	if c.opts.OnError != nil {
		c.opts.OnError(message)
	}
}

// flush sends the merged pending patch over the live channel, or as a
// fire-and-forget REST write when disconnected.
func (c *Controller) flush() {
	c.mu.Lock()
	patch := c.pending
	c.pending = model.Patch{}
	conn := c.conn
	connected := c.state == StateConnected
	base := c.ctx
	c.mu.Unlock()

	if patch.Empty() {
		return
	}
	if connected && conn != nil {
		err := conn.Send(socket.EventClientNoteUpdate, socket.NoteUpdate{NoteID: c.noteID, Patch: patch})
		if err == nil {
			return
		}
		logger.Sugar.Debugf("syncclient: live update failed, writing through REST: %v", err)
	}

	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, c.opts.RequestTimeout)
	defer cancel()
	if err := c.api.Put(ctx, c.noteID, patch); err != nil {
		logger.Sugar.Debugf("syncclient: fallback write dropped: %v", err)
	}
}

// startPolling must be called with mu held.
func (c *Controller) startPolling() {
	if c.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.pollCancel = cancel
	go func() {
		ticker := time.NewTicker(c.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx)
			}
		}
	}()
}

// stopPolling must be called with mu held.
func (c *Controller) stopPolling() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

func cloneView(v *model.NoteView) *model.NoteView {
	out := &model.NoteView{Access: v.Access}
	if v.Note != nil {
		n := *v.Note
		n.SharedWith = append(n.SharedWith[:0:0], v.Note.SharedWith...)
		out.Note = &n
	}
	return out
}
