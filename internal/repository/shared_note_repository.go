package repository

import (
	"context"

	"shared-notes-server/internal/domain"
)

// SharedNoteRepository is the durable keyed record of shared notes. It does
// no merging and no version comparison: the last Put to complete wins.
// There is no listing operation.
type SharedNoteRepository interface {
	// Get returns domain.ErrNoteNotFound when id is absent.
	Get(ctx context.Context, id string) (*domain.SharedNote, error)
	Put(ctx context.Context, note *domain.SharedNote) error
	// Delete succeeds when id is already absent.
	Delete(ctx context.Context, id string) error
	Close() error
}
