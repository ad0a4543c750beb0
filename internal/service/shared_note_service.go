package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"shared-notes-server/internal/clock"
	"shared-notes-server/internal/domain"
	"shared-notes-server/internal/repository"
	"shared-notes-server/pkg/logger/slogx"
)

// Notifier receives every accepted write so subscribed surfaces can converge
// without polling. Delivery is best effort.
type Notifier interface {
	NoteUpdated(ctx context.Context, note *domain.SharedNote) error
	NoteDeleted(ctx context.Context, id string) error
}

type Recorder interface {
	RecordNoteOperation(op string, err error)
}

type SharedNoteService struct {
	repo     repository.SharedNoteRepository
	notifier Notifier
	recorder Recorder
	clock    clock.Clock
	newID    func() string
	locks    noteLocks
}

type Option func(*SharedNoteService)

func WithNotifier(n Notifier) Option {
	return func(s *SharedNoteService) { s.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(s *SharedNoteService) { s.recorder = r }
}

func WithClock(c clock.Clock) Option {
	return func(s *SharedNoteService) { s.clock = c }
}

func WithIDGenerator(f func() string) Option {
	return func(s *SharedNoteService) { s.newID = f }
}

func NewSharedNoteService(repo repository.SharedNoteRepository, newID func() string, opts ...Option) *SharedNoteService {
	s := &SharedNoteService{
		repo:  repo,
		clock: clock.Real(),
		newID: newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SharedNoteService) Create(ctx context.Context, title, content string) (note *domain.SharedNote, err error) {
	defer func() { s.record("create", err) }()

	if strings.TrimSpace(title) == "" {
		title = domain.DefaultTitle
	}

	now := domain.NewTimestamp(s.clock.Now())
	note = &domain.SharedNote{
		ID:        s.newID(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Put(ctx, note); err != nil {
		return nil, fmt.Errorf("create shared note: %w", err)
	}

	s.notifyUpdated(ctx, note)
	return note, nil
}

func (s *SharedNoteService) Fetch(ctx context.Context, id string) (note *domain.SharedNote, err error) {
	defer func() { s.record("fetch", err) }()

	note, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch shared note %s: %w", id, err)
	}
	return note, nil
}

// Update replaces title and content. Updates to one id are serialized, so
// the stored updatedAt only moves forward and the last accepted update is
// the one stored.
func (s *SharedNoteService) Update(ctx context.Context, id, title, content string) (note *domain.SharedNote, err error) {
	defer func() { s.record("update", err) }()

	unlock := s.locks.lock(id)
	defer unlock()

	note, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update shared note %s: %w", id, err)
	}

	note.Title = title
	note.Content = content
	note.UpdatedAt = domain.Next(note.UpdatedAt, s.clock.Now())

	if err := s.repo.Put(ctx, note); err != nil {
		return nil, fmt.Errorf("update shared note %s: %w", id, err)
	}

	s.notifyUpdated(ctx, note)
	return note, nil
}

func (s *SharedNoteService) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.record("delete", err) }()

	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete shared note %s: %w", id, err)
	}

	if s.notifier != nil {
		if err := s.notifier.NoteDeleted(ctx, id); err != nil {
			slogx.Warn(ctx, "failed to notify shared note deletion", slogx.NoteID(id), slogx.Err(err))
		}
	}
	return nil
}

func (s *SharedNoteService) notifyUpdated(ctx context.Context, note *domain.SharedNote) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NoteUpdated(ctx, note.Clone()); err != nil {
		slogx.Warn(ctx, "failed to notify shared note update", slogx.NoteID(note.ID), slogx.Err(err))
	}
}

func (s *SharedNoteService) record(op string, err error) {
	if s.recorder != nil {
		s.recorder.RecordNoteOperation(op, err)
	}
}

// noteLocks hands out one mutex per note id and forgets it once no caller
// holds or waits for it.
type noteLocks struct {
	mu    sync.Mutex
	locks map[string]*noteLock
}

type noteLock struct {
	sync.Mutex
	refs int
}

func (l *noteLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*noteLock)
	}
	nl, ok := l.locks[id]
	if !ok {
		nl = &noteLock{}
		l.locks[id] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.Lock()
	return func() {
		nl.Unlock()

		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// refs reports how many callers hold or wait for the lock of id.
func (l *noteLocks) refs(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if nl, ok := l.locks[id]; ok {
		return nl.refs
	}
	return 0
}
