package pubsub

import (
	"context"

	"shared-notes-server/internal/domain"
)

type noteBroadcaster interface {
	NoteUpdated(note *domain.SharedNote) error
	NoteDeleted(noteID string) error
}

// HubNotifier delivers events straight to the subscriptions held by this
// process.
type HubNotifier struct {
	hub noteBroadcaster
}

func NewHubNotifier(hub noteBroadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NoteUpdated(_ context.Context, note *domain.SharedNote) error {
	return n.hub.NoteUpdated(note)
}

func (n *HubNotifier) NoteDeleted(_ context.Context, id string) error {
	return n.hub.NoteDeleted(id)
}
