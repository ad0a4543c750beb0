package websocket

import (
	"encoding/json"
	"time"

	"shared-notes-server/internal/domain"
)

type MessageType string

const (
	TypeNoteUpdate MessageType = "note_update"
	TypeNoteDelete MessageType = "note_delete"
	TypePresence   MessageType = "presence"
	TypePing       MessageType = "ping"
	TypePong       MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type NoteUpdatePayload struct {
	Note *domain.SharedNote `json:"note"`
}

type NoteDeletePayload struct {
	NoteID string `json:"noteId"`
}

// PresencePayload carries the number of live subscriptions on a note,
// counted on this server instance.
type PresencePayload struct {
	NoteID  string `json:"noteId"`
	Editors int    `json:"editors"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
