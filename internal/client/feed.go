package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"shared-notes-server/internal/domain"
	"shared-notes-server/internal/websocket"
	"shared-notes-server/pkg/logger/slogx"

	"github.com/avast/retry-go/v4"
	ws "github.com/gorilla/websocket"
)

type EventType string

const (
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
	EventPresence EventType = "presence"
)

// Event is one push from the server about a subscribed note.
type Event struct {
	Type    EventType
	NoteID  string
	Note    *domain.SharedNote
	Editors int
}

const (
	redialDelay    = 250 * time.Millisecond
	redialMaxDelay = 10 * time.Second
)

// Feed is a live websocket subscription to one note. It redials after
// transport failures until closed; events missed while disconnected are not
// replayed.
type Feed struct {
	noteID string
	url    string
	dialer *ws.Dialer
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *ws.Conn
}

// Subscribe opens the push channel for noteID. The returned Feed must be
// closed.
func (c *Client) Subscribe(ctx context.Context, noteID string) *Feed {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += c.notePath(noteID) + "/ws"

	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		noteID: noteID,
		url:    u.String(),
		dialer: &ws.Dialer{HandshakeTimeout: defaultTimeout},
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

// Events is closed once the feed stops.
func (f *Feed) Events() <-chan Event {
	return f.events
}

func (f *Feed) Close() error {
	f.cancel()

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()

	<-f.done
	return nil
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.events)

	for {
		conn, err := f.dial(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNoteNotFound) {
				f.emit(ctx, Event{Type: EventDeleted, NoteID: f.noteID})
			}
			return
		}

		err = f.read(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		slogx.Debug(ctx, "push feed disconnected, redialing", slogx.NoteID(f.noteID), slogx.Err(err))
	}
}

func (f *Feed) dial(ctx context.Context) (*ws.Conn, error) {
	var conn *ws.Conn

	err := retry.Do(
		func() error {
			c, resp, err := f.dialer.DialContext(ctx, f.url, nil)
			if err != nil {
				if resp != nil && resp.StatusCode == http.StatusNotFound {
					return retry.Unrecoverable(fmt.Errorf("subscribe %s: %w", f.noteID, domain.ErrNoteNotFound))
				}
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(redialDelay),
		retry.MaxDelay(redialMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slogx.Debug(ctx, "push feed dial failed", slogx.NoteID(f.noteID), slogx.Err(err))
		}),
	)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return nil, ctx.Err()
	}
	f.conn = conn
	return conn, nil
}

func (f *Feed) read(ctx context.Context, conn *ws.Conn) error {
	for {
		var msg websocket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		ev, ok, err := toEvent(f.noteID, &msg)
		if err != nil {
			slogx.Warn(ctx, "ignoring malformed push message", slogx.NoteID(f.noteID), slogx.Err(err))
			continue
		}
		if ok {
			f.emit(ctx, ev)
		}
	}
}

func (f *Feed) emit(ctx context.Context, ev Event) {
	select {
	case f.events <- ev:
	case <-ctx.Done():
	}
}

func toEvent(noteID string, msg *websocket.Message) (Event, bool, error) {
	switch msg.Type {
	case websocket.TypeNoteUpdate:
		var p websocket.NoteUpdatePayload
		if err := msg.UnmarshalPayload(&p); err != nil {
			return Event{}, false, err
		}
		if p.Note == nil || p.Note.ID != noteID {
			return Event{}, false, fmt.Errorf("update payload for another note")
		}
		return Event{Type: EventUpdated, NoteID: noteID, Note: p.Note}, true, nil

	case websocket.TypeNoteDelete:
		return Event{Type: EventDeleted, NoteID: noteID}, true, nil

	case websocket.TypePresence:
		var p websocket.PresencePayload
		if err := msg.UnmarshalPayload(&p); err != nil {
			return Event{}, false, err
		}
		return Event{Type: EventPresence, NoteID: noteID, Editors: p.Editors}, true, nil

	default:
		return Event{}, false, nil
	}
}
