package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"shared-notes-server/internal/domain"
	"shared-notes-server/pkg/logger/slogx"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

// ConnectionObserver is told about every accepted and released subscription.
type ConnectionObserver interface {
	ClientRegistered()
	ClientUnregistered()
}

type Options struct {
	MaxConnPerNote int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// Manager fans note events out to every subscription of that note. All
// registration changes go through Run; broadcasts only take the read lock.
type Manager struct {
	clients        map[string]*Client
	noteIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	done           chan struct{}
	maxConnPerNote int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	messageHandler MessageHandler
	observer       ConnectionObserver
}

func NewManager(opts Options) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		noteIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxConnPerNote: opts.MaxConnPerNote,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		maxMessageSize: opts.MaxMessageSize,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) SetObserver(observer ConnectionObserver) {
	m.observer = observer
}

// Run serves registrations until ctx is cancelled, then closes every
// subscription.
func (m *Manager) Run(ctx context.Context) {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

// Subscribe hands client to Run. It reports false once the manager has
// stopped.
func (m *Manager) Subscribe(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) shutdown() {
	close(m.done)

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
		if m.observer != nil {
			m.observer.ClientUnregistered()
		}
	}
	m.noteIndex = make(map[string]map[string]bool)
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()

	if m.noteIndex[client.NoteID] == nil {
		m.noteIndex[client.NoteID] = make(map[string]bool)
	}

	if m.maxConnPerNote > 0 && len(m.noteIndex[client.NoteID]) >= m.maxConnPerNote {
		m.clientsMutex.Unlock()
		slogx.Warn(context.Background(), "max connections reached for shared note", slogx.NoteID(client.NoteID))
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.noteIndex[client.NoteID][client.ID] = true
	count := len(m.noteIndex[client.NoteID])
	m.clientsMutex.Unlock()

	if m.observer != nil {
		m.observer.ClientRegistered()
	}
	slogx.Debug(context.Background(), "websocket client registered",
		slog.String("client_id", client.ID), slogx.NoteID(client.NoteID))

	m.broadcastPresence(client.NoteID, count)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()

	if _, ok := m.clients[client.ID]; !ok {
		m.clientsMutex.Unlock()
		return
	}

	delete(m.clients, client.ID)
	delete(m.noteIndex[client.NoteID], client.ID)
	count := len(m.noteIndex[client.NoteID])
	if count == 0 {
		delete(m.noteIndex, client.NoteID)
	}
	close(client.Send)
	m.clientsMutex.Unlock()

	if m.observer != nil {
		m.observer.ClientUnregistered()
	}
	slogx.Debug(context.Background(), "websocket client unregistered",
		slog.String("client_id", client.ID), slogx.NoteID(client.NoteID))

	if count > 0 {
		m.broadcastPresence(client.NoteID, count)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		slogx.Warn(context.Background(), "error unmarshaling websocket message", slogx.Err(err))
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			slogx.Warn(context.Background(), "error handling websocket message", slogx.Err(err))
		}
	}
}

func (m *Manager) broadcastPresence(noteID string, count int) {
	msg, err := NewMessage(TypePresence, &PresencePayload{NoteID: noteID, Editors: count})
	if err != nil {
		return
	}
	m.BroadcastToNote(noteID, msg, "")
}

// BroadcastToNote delivers message to every subscription of noteID except
// excludeClientID. Subscribers whose buffer is full are dropped.
func (m *Manager) BroadcastToNote(noteID string, message *Message, excludeClientID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client

	m.clientsMutex.RLock()
	for clientID := range m.noteIndex[noteID] {
		if clientID == excludeClientID {
			continue
		}
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		slogx.Warn(context.Background(), "websocket send buffer full, dropping client",
			slog.String("client_id", client.ID), slogx.NoteID(noteID))
		go m.unregister(client)
	}

	return nil
}

func (m *Manager) NoteUpdated(note *domain.SharedNote) error {
	msg, err := NewMessage(TypeNoteUpdate, &NoteUpdatePayload{Note: note})
	if err != nil {
		return err
	}
	return m.BroadcastToNote(note.ID, msg, "")
}

func (m *Manager) NoteDeleted(noteID string) error {
	msg, err := NewMessage(TypeNoteDelete, &NoteDeletePayload{NoteID: noteID})
	if err != nil {
		return err
	}
	return m.BroadcastToNote(noteID, msg, "")
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		slogx.Warn(context.Background(), "websocket send buffer full", slog.String("client_id", clientID))
	}

	return nil
}

func (m *Manager) NoteConnections(noteID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.noteIndex[noteID])
}
