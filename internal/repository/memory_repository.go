package repository

import (
	"context"
	"sync"

	"shared-notes-server/internal/domain"
)

type memoryRepository struct {
	mu    sync.RWMutex
	notes map[string]domain.SharedNote
}

func NewMemoryRepository() SharedNoteRepository {
	return &memoryRepository{
		notes: make(map[string]domain.SharedNote),
	}
}

func (r *memoryRepository) Get(_ context.Context, id string) (*domain.SharedNote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	note, ok := r.notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	return &note, nil
}

func (r *memoryRepository) Put(_ context.Context, note *domain.SharedNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notes[note.ID] = *note
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.notes, id)
	return nil
}

func (r *memoryRepository) Close() error { return nil }
