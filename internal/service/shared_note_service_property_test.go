package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"shared-notes-server/internal/clock"
	"shared-notes-server/internal/domain"

	"pgregory.net/rapid"
)

type edit struct {
	Title   string
	Content string
	Delay   time.Duration
}

func editGenerator() *rapid.Generator[edit] {
	return rapid.Custom(func(t *rapid.T) edit {
		return edit{
			Title:   rapid.StringMatching(`[A-Za-z0-9 ]{0,20}`).Draw(t, "title"),
			Content: rapid.StringMatching(`[A-Za-z0-9 .,!?]{0,80}`).Draw(t, "content"),
			// Zero delays exercise writes landing in the same microsecond.
			Delay: time.Duration(rapid.IntRange(0, 5000).Draw(t, "delayMicros")) * time.Microsecond,
		}
	})
}

func TestProperty_LastCompletedUpdateWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		fake := clock.NewFake(epoch)
		service := newTestService(fake)

		note, err := service.Create(ctx, "start", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		edits := rapid.SliceOfN(editGenerator(), 1, 30).Draw(t, "edits")
		var last edit
		for _, e := range edits {
			fake.Advance(e.Delay)
			if _, err := service.Update(ctx, note.ID, e.Title, e.Content); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			last = e
		}

		got, err := service.Fetch(ctx, note.ID)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if got.Title != last.Title || got.Content != last.Content {
			t.Fatalf("fetched (%q, %q), want last write (%q, %q)", got.Title, got.Content, last.Title, last.Content)
		}
	})
}

func TestProperty_VersionMarkerStrictlyIncreases(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		fake := clock.NewFake(epoch)
		service := newTestService(fake)

		note, _ := service.Create(ctx, "start", "")
		prev := note.UpdatedAt

		for _, e := range rapid.SliceOfN(editGenerator(), 1, 30).Draw(t, "edits") {
			fake.Advance(e.Delay)
			updated, err := service.Update(ctx, note.ID, e.Title, e.Content)
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if !updated.UpdatedAt.After(prev) {
				t.Fatalf("updatedAt %s not after previous %s", updated.UpdatedAt, prev)
			}
			if !updated.CreatedAt.Equal(note.CreatedAt) {
				t.Fatalf("createdAt changed from %s to %s", note.CreatedAt, updated.CreatedAt)
			}
			prev = updated.UpdatedAt
		}
	})
}

func TestProperty_ConcurrentUpdatesKeepNewestStored(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		fake := clock.NewFake(epoch)
		service := newTestService(fake)

		note, err := service.Create(ctx, "start", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		edits := rapid.SliceOfN(editGenerator(), 2, 12).Draw(t, "edits")
		results := make([]*domain.SharedNote, len(edits))
		errs := make([]error, len(edits))

		var wg sync.WaitGroup
		for i, e := range edits {
			i, e := i, e
			wg.Add(1)
			go func() {
				defer wg.Done()
				fake.Advance(e.Delay)
				results[i], errs[i] = service.Update(ctx, note.ID, e.Title, e.Content)
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
		}

		newest := note
		seen := make(map[string]bool)
		for _, r := range results {
			if seen[r.UpdatedAt.String()] {
				t.Fatalf("two updates stamped %s", r.UpdatedAt)
			}
			seen[r.UpdatedAt.String()] = true
			if r.UpdatedAt.After(newest.UpdatedAt) {
				newest = r
			}
		}

		got, err := service.Fetch(ctx, note.ID)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !got.UpdatedAt.Equal(newest.UpdatedAt) || got.Title != newest.Title || got.Content != newest.Content {
			t.Fatalf("stored (%q, %q)@%s, want newest accepted update (%q, %q)@%s",
				got.Title, got.Content, got.UpdatedAt, newest.Title, newest.Content, newest.UpdatedAt)
		}
		if n := service.locks.refs(note.ID); n != 0 {
			t.Fatalf("%d lock references left for %s", n, note.ID)
		}
	})
}
