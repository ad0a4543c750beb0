package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"shared-notes-server/internal/clock"
	"shared-notes-server/internal/domain"
	"shared-notes-server/internal/repository"
)

type mockNotifier struct {
	mu      sync.Mutex
	updated []*domain.SharedNote
	deleted []string
	err     error
}

func (m *mockNotifier) NoteUpdated(_ context.Context, note *domain.SharedNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, note)
	return m.err
}

func (m *mockNotifier) NoteDeleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return m.err
}

type failingRepo struct {
	repository.SharedNoteRepository
	putErr error
}

func (f *failingRepo) Put(ctx context.Context, note *domain.SharedNote) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.SharedNoteRepository.Put(ctx, note)
}

type countingRecorder struct {
	ops map[string]int
}

func (c *countingRecorder) RecordNoteOperation(op string, err error) {
	if c.ops == nil {
		c.ops = make(map[string]int)
	}
	key := op
	if err != nil {
		key += ":error"
	}
	c.ops[key]++
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("note-%d", n)
	}
}

func newTestService(c clock.Clock, opts ...Option) *SharedNoteService {
	opts = append([]Option{WithClock(c)}, opts...)
	return NewSharedNoteService(repository.NewMemoryRepository(), sequentialIDs(), opts...)
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSharedNoteService_Scenario(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	service := newTestService(fake)

	created, err := service.Create(ctx, "Session 1", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.Title != "Session 1" || created.Content != "" {
		t.Fatalf("unexpected created note %+v", created)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("expected createdAt == updatedAt, got %s / %s", created.CreatedAt, created.UpdatedAt)
	}

	fetched, err := service.Fetch(ctx, created.ID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if *fetched != *created {
		t.Errorf("fetched %+v, want %+v", fetched, created)
	}

	fake.Advance(3 * time.Second)
	updated, err := service.Update(ctx, created.ID, "Session 1", "Goblins ambush the party")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != created.ID || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("update changed identity: %+v", updated)
	}
	if updated.Content != "Goblins ambush the party" {
		t.Errorf("unexpected content %q", updated.Content)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("updatedAt %s not after %s", updated.UpdatedAt, created.UpdatedAt)
	}

	if err := service.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := service.Fetch(ctx, created.ID); !errors.Is(err, domain.ErrNoteNotFound) {
		t.Errorf("expected ErrNoteNotFound after delete, got %v", err)
	}
}

func TestSharedNoteService_CreateDefaults(t *testing.T) {
	service := newTestService(clock.NewFake(epoch))

	tests := []struct {
		name      string
		title     string
		wantTitle string
	}{
		{"empty title", "", domain.DefaultTitle},
		{"blank title", "   ", domain.DefaultTitle},
		{"given title", "Plans", "Plans"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, err := service.Create(context.Background(), tt.title, "")
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if note.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", note.Title, tt.wantTitle)
			}
			if note.Content != "" {
				t.Errorf("content = %q, want empty", note.Content)
			}
		})
	}
}

func TestSharedNoteService_UpdateUnknown(t *testing.T) {
	service := newTestService(clock.NewFake(epoch))

	_, err := service.Update(context.Background(), "missing", "t", "c")
	if !errors.Is(err, domain.ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound, got %v", err)
	}
}

func TestSharedNoteService_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service := newTestService(clock.NewFake(epoch))

	note, _ := service.Create(ctx, "t", "c")

	for i := 0; i < 2; i++ {
		if err := service.Delete(ctx, note.ID); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
		if _, err := service.Fetch(ctx, note.ID); !errors.Is(err, domain.ErrNoteNotFound) {
			t.Errorf("Fetch after delete #%d: %v", i+1, err)
		}
	}

	if err := service.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete of unknown id: %v", err)
	}
}

func TestSharedNoteService_UpdateWithFrozenClockStillAdvances(t *testing.T) {
	ctx := context.Background()
	service := newTestService(clock.NewFake(epoch))

	note, _ := service.Create(ctx, "t", "")
	prev := note.UpdatedAt
	for i := 0; i < 5; i++ {
		updated, err := service.Update(ctx, note.ID, "t", fmt.Sprintf("rev %d", i))
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if !updated.UpdatedAt.After(prev) {
			t.Fatalf("update %d: %s is not after %s", i, updated.UpdatedAt, prev)
		}
		prev = updated.UpdatedAt
	}
}

func TestSharedNoteService_StorageErrorIsNotNotFound(t *testing.T) {
	repo := &failingRepo{SharedNoteRepository: repository.NewMemoryRepository(), putErr: errors.New("disk full")}
	service := NewSharedNoteService(repo, sequentialIDs(), WithClock(clock.NewFake(epoch)))

	_, err := service.Create(context.Background(), "t", "c")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrNoteNotFound) {
		t.Error("storage failure reported as not found")
	}
}

func TestSharedNoteService_NotifiesAcceptedWrites(t *testing.T) {
	ctx := context.Background()
	notifier := &mockNotifier{}
	service := newTestService(clock.NewFake(epoch), WithNotifier(notifier))

	note, _ := service.Create(ctx, "t", "")
	service.Update(ctx, note.ID, "t", "body")
	service.Update(ctx, "missing", "t", "body")
	service.Delete(ctx, note.ID)

	if len(notifier.updated) != 2 {
		t.Fatalf("expected 2 update notifications, got %d", len(notifier.updated))
	}
	if notifier.updated[1].Content != "body" {
		t.Errorf("unexpected notified content %q", notifier.updated[1].Content)
	}
	if len(notifier.deleted) != 1 || notifier.deleted[0] != note.ID {
		t.Errorf("unexpected delete notifications %v", notifier.deleted)
	}
}

func TestSharedNoteService_NotifierFailureDoesNotFailWrite(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("redis down")}
	service := newTestService(clock.NewFake(epoch), WithNotifier(notifier))

	if _, err := service.Create(context.Background(), "t", "c"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestSharedNoteService_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	service := newTestService(clock.NewFake(epoch), WithRecorder(recorder))

	note, _ := service.Create(ctx, "t", "c")
	service.Fetch(ctx, note.ID)
	service.Fetch(ctx, "missing")

	if recorder.ops["create"] != 1 || recorder.ops["fetch"] != 1 || recorder.ops["fetch:error"] != 1 {
		t.Errorf("unexpected recorded ops %v", recorder.ops)
	}
}

// gatedRepo holds every Put of content gate until release is closed.
type gatedRepo struct {
	repository.SharedNoteRepository
	gate    string
	held    chan struct{}
	release chan struct{}
}

func (g *gatedRepo) Put(ctx context.Context, note *domain.SharedNote) error {
	if note.Content == g.gate {
		close(g.held)
		<-g.release
	}
	return g.SharedNoteRepository.Put(ctx, note)
}

func TestSharedNoteService_SlowUpdateCannotMoveMarkerBack(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	repo := &gatedRepo{
		SharedNoteRepository: repository.NewMemoryRepository(),
		gate:                 "from B",
		held:                 make(chan struct{}),
		release:              make(chan struct{}),
	}
	service := NewSharedNoteService(repo, sequentialIDs(), WithClock(fake))

	note, err := service.Create(ctx, "t", "start")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	fake.Advance(time.Second)
	slowDone := make(chan *domain.SharedNote, 1)
	go func() {
		updated, err := service.Update(ctx, note.ID, "t", "from B")
		if err != nil {
			t.Errorf("slow Update() error = %v", err)
		}
		slowDone <- updated
	}()
	<-repo.held

	fake.Advance(1500 * time.Millisecond)
	fastDone := make(chan *domain.SharedNote, 1)
	go func() {
		updated, err := service.Update(ctx, note.ID, "t", "from A")
		if err != nil {
			t.Errorf("fast Update() error = %v", err)
		}
		fastDone <- updated
	}()

	deadline := time.Now().Add(2 * time.Second)
	for service.locks.refs(note.ID) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second update never queued behind the first")
		}
		time.Sleep(time.Millisecond)
	}

	close(repo.release)
	slow := <-slowDone
	fast := <-fastDone
	if slow == nil || fast == nil {
		t.FailNow()
	}

	if !fast.UpdatedAt.After(slow.UpdatedAt) {
		t.Fatalf("later update stamped %s, not after %s", fast.UpdatedAt, slow.UpdatedAt)
	}

	stored, err := service.Fetch(ctx, note.ID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stored.Content != "from A" || !stored.UpdatedAt.Equal(fast.UpdatedAt) {
		t.Errorf("stored %q@%s, want %q@%s", stored.Content, stored.UpdatedAt, "from A", fast.UpdatedAt)
	}
	if n := service.locks.refs(note.ID); n != 0 {
		t.Errorf("%d lock references left", n)
	}
}
