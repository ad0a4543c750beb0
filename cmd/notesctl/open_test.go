package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"shared-notes-server/internal/broadcast"
	"shared-notes-server/internal/clock"
	"shared-notes-server/internal/domain"
	"shared-notes-server/internal/repository"
	"shared-notes-server/internal/service"
	"shared-notes-server/internal/share"
	"shared-notes-server/internal/syncengine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "title Groceries", want: command{kind: cmdTitle, text: "Groceries"}},
		{line: "title", want: command{kind: cmdTitle}},
		{line: "append buy milk", want: command{kind: cmdAppend, text: "buy milk"}},
		{line: "set  two spaces", want: command{kind: cmdSet, text: " two spaces"}},
		{line: "use 2", want: command{kind: cmdUse, n: 2}},
		{line: "use two", wantErr: true},
		{line: "show", want: command{kind: cmdShow}},
		{line: "quit\r\n", want: command{kind: cmdQuit}},
		{line: "exit", want: command{kind: cmdQuit}},
		{line: "rm -rf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyEdit(t *testing.T) {
	s := syncengine.Snapshot{Title: "T", Content: "line one"}

	title, content := applyEdit(command{kind: cmdTitle, text: "New"}, s)
	assert.Equal(t, "New", title)
	assert.Equal(t, "line one", content)

	title, content = applyEdit(command{kind: cmdAppend, text: "line two"}, s)
	assert.Equal(t, "T", title)
	assert.Equal(t, "line one\nline two", content)

	_, content = applyEdit(command{kind: cmdAppend, text: "first"}, syncengine.Snapshot{})
	assert.Equal(t, "first", content)

	_, content = applyEdit(command{kind: cmdSet, text: ""}, s)
	assert.Empty(t, content)
}

func startSurfaces(t *testing.T, n int) []*syncengine.Engine {
	t.Helper()

	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := service.NewSharedNoteService(repository.NewMemoryRepository(), share.NewID, service.WithClock(fake))
	note, err := svc.Create(context.Background(), "Session 1", "start")
	require.NoError(t, err)

	bus := broadcast.NewBus()
	engines := make([]*syncengine.Engine, n)
	for i := range engines {
		e := syncengine.New(note.ID, svc, syncengine.Options{Clock: fake, Bus: bus})
		engines[i] = e
		go e.Run(context.Background())
		t.Cleanup(e.Close)

		require.Eventually(t, func() bool {
			return e.Snapshot().State == syncengine.StateReady
		}, 2*time.Second, 5*time.Millisecond)
	}
	return engines
}

func TestReadCommands(t *testing.T) {
	engines := startSurfaces(t, 2)

	in := strings.NewReader(strings.Join([]string{
		"title Hello",
		"append world",
		"",
		"use 2",
		"show",
		"use 3",
		"bogus",
		"use 1",
		"show",
		"quit",
		"title never applied",
	}, "\n"))
	var out bytes.Buffer

	err := readCommands(context.Background(), in, &out, engines)
	require.NoError(t, err)

	first := engines[0].Snapshot()
	assert.Equal(t, "Hello", first.Title)
	assert.Equal(t, "start\nworld", first.Content)
	assert.True(t, first.Dirty())

	second := engines[1].Snapshot()
	assert.Equal(t, "Session 1", second.Title)

	text := out.String()
	assert.Contains(t, text, "# Session 1\nstart\n")
	assert.Contains(t, text, "surface 3 does not exist")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "# Hello\nstart\nworld\n")
	assert.Contains(t, text, "unsaved changes")
}

func TestReadCommands_EOF(t *testing.T) {
	engines := startSurfaces(t, 1)

	err := readCommands(context.Background(), strings.NewReader("set abc"), &bytes.Buffer{}, engines)
	require.NoError(t, err)
	assert.Equal(t, "abc", engines[0].Snapshot().Content)
}

func TestReadCommands_ClosedSurface(t *testing.T) {
	engines := startSurfaces(t, 1)
	engines[0].Close()
	<-engines[0].Done()

	err := readCommands(context.Background(), strings.NewReader("set abc\n"), &bytes.Buffer{}, engines)
	assert.ErrorIs(t, err, syncengine.ErrClosed)
}

func TestPrintSnapshot(t *testing.T) {
	var out bytes.Buffer
	printSnapshot(&out, syncengine.Snapshot{
		Title:              "T",
		Content:            "C",
		State:              syncengine.StateReady,
		Online:             true,
		Editors:            2,
		LastKnownUpdatedAt: domain.NewTimestamp(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})

	assert.Equal(t, "# T\nC\n-- ready, online, version 2026-03-01T12:00:00.000000Z, 2 editing\n", out.String())
}

func TestStateReporter(t *testing.T) {
	var out bytes.Buffer
	report := stateReporter(&out, 1)

	report(syncengine.Snapshot{State: syncengine.StateLoading})
	report(syncengine.Snapshot{State: syncengine.StateLoading})
	report(syncengine.Snapshot{State: syncengine.StateReady})

	assert.Equal(t, "[surface 1] loading\n[surface 1] ready\n", out.String())
}
