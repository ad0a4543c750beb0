package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"shared-notes-server/internal/domain"
	"shared-notes-server/internal/websocket"
	"shared-notes-server/pkg/logger/slogx"
	"shared-notes-server/pkg/response"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
)

type noteFetcher interface {
	Fetch(ctx context.Context, id string) (*domain.SharedNote, error)
}

type WebSocketHandler struct {
	manager  *websocket.Manager
	notes    noteFetcher
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, notes noteFetcher, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		notes:   notes,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// Anyone holding the link may subscribe, from any origin.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection subscribes the caller to push events of one shared note.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	if _, err := h.notes.Fetch(r.Context(), noteID); err != nil {
		if errors.Is(err, domain.ErrNoteNotFound) {
			response.NotFound(w, "Shared note not found")
			return
		}
		slogx.Error(r.Context(), "failed to look up shared note for subscription", slogx.NoteID(noteID), slogx.Err(err))
		response.InternalError(w, "Failed to subscribe")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slogx.Warn(r.Context(), "failed to upgrade websocket connection", slogx.NoteID(noteID), slogx.Err(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), noteID, conn, h.manager)
	if !h.manager.Subscribe(client) {
		conn.Close()
		return
	}

	slogx.Debug(r.Context(), "websocket subscription opened",
		slog.String("client_id", client.ID), slogx.NoteID(noteID))

	go client.WritePump()
	go client.ReadPump()
}

type WebSocketMessageHandler struct {
	manager *websocket.Manager
}

func NewWebSocketMessageHandler(manager *websocket.Manager) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{manager: manager}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypePing:
		return h.handlePing(client)

	default:
		slogx.Debug(context.Background(), "ignoring websocket message",
			slog.String("type", string(msg.Type)), slogx.NoteID(client.NoteID))
	}

	return nil
}

func (h *WebSocketMessageHandler) handlePing(client *websocket.Client) error {
	pongMsg, err := websocket.NewMessage(websocket.TypePong, nil)
	if err != nil {
		return err
	}
	return h.manager.SendToClient(client.ID, pongMsg)
}
