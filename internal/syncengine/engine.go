// Package syncengine keeps one editing surface of a shared note converged
// with the store. Local edits are saved after a quiet period; records saved
// elsewhere arrive through the in-process bus, the server push feed or
// polling. Pushed records are adopted when they carry a newer version marker;
// a polled record is adopted whenever its marker differs, since the store is
// the authority.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shared-notes-server/internal/broadcast"
	"shared-notes-server/internal/client"
	"shared-notes-server/internal/clock"
	"shared-notes-server/internal/domain"
	"shared-notes-server/pkg/logger/slogx"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultDebounce     = 1500 * time.Millisecond
)

var ErrClosed = errors.New("sync engine closed")

// API is the part of the shared note service a surface needs.
type API interface {
	Fetch(ctx context.Context, id string) (*domain.SharedNote, error)
	Update(ctx context.Context, id, title, content string) (*domain.SharedNote, error)
}

// Feed is a server push subscription, see client.Feed.
type Feed interface {
	Events() <-chan client.Event
	Close() error
}

type Options struct {
	PollInterval time.Duration
	Debounce     time.Duration
	Clock        clock.Clock

	// Bus links surfaces of the same process. Optional.
	Bus *broadcast.Bus

	// Feed delivers server pushes. Optional; the engine closes it on
	// teardown.
	Feed Feed

	// OnChange is called from the engine goroutine with every new
	// snapshot. It must not call Edit.
	OnChange func(Snapshot)
}

type editRequest struct {
	title   string
	content string
	done    chan struct{}
}

// Engine is a single-goroutine actor: every timer, network result and
// subscription message is turned into work on the Run loop, so the fields
// below the separator are only touched from that goroutine.
type Engine struct {
	noteID string
	api    API
	opts   Options

	edits   chan editRequest
	work    chan func()
	closed  chan struct{}
	done    chan struct{}
	closeMu sync.Once
	runOnce sync.Once

	snapMu sync.RWMutex
	snap   Snapshot

	// loop-owned
	state      State
	title      string
	content    string
	baseline   *domain.SharedNote
	marker     domain.Timestamp
	online     bool
	lastErr    error
	pollErr    bool
	lastSynced time.Time
	editors    int

	debounce    *clock.Timer
	debounceGen uint64
	saving      bool
	polling     bool
	editSeq     uint64
	// saveEpoch advances when a save starts and when it finishes.
	saveEpoch uint64

	sub     *broadcast.Subscription
	callCtx context.Context
}

func New(noteID string, api API, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	e := &Engine{
		noteID: noteID,
		api:    api,
		opts:   opts,
		edits:  make(chan editRequest),
		work:   make(chan func(), 16),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		state:  StateLoading,
	}
	e.snap = e.buildSnapshot()
	return e
}

func (e *Engine) NoteID() string {
	return e.noteID
}

func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Edit records a local change to the draft. It returns once the change is
// visible in Snapshot, or ErrClosed.
func (e *Engine) Edit(title, content string) error {
	req := editRequest{title: title, content: content, done: make(chan struct{})}

	select {
	case e.edits <- req:
	case <-e.done:
		return ErrClosed
	}

	select {
	case <-req.done:
		return nil
	case <-e.done:
		return ErrClosed
	}
}

// Close tears the engine down. In-flight network calls finish on their own
// and their results are dropped.
func (e *Engine) Close() {
	e.closeMu.Do(func() { close(e.closed) })
}

// Run loads the note and keeps it synchronized until Close or ctx
// cancellation, which return nil. A failed initial load and a note deleted
// while open end Run with an error wrapping the cause.
func (e *Engine) Run(ctx context.Context) error {
	started := false
	e.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("sync engine already running")
	}
	defer close(e.done)

	// Calls in flight at teardown are left to complete.
	e.callCtx = context.WithoutCancel(ctx)

	note, err := e.load(ctx)
	if note == nil {
		if e.opts.Feed != nil {
			e.opts.Feed.Close()
		}
		return err
	}

	e.baseline = note
	e.title, e.content = note.Title, note.Content
	e.marker = note.UpdatedAt
	e.online = true
	e.lastSynced = e.opts.Clock.Now()

	var busC <-chan *domain.SharedNote
	if e.opts.Bus != nil {
		e.sub = e.opts.Bus.Subscribe(e.noteID)
		busC = e.sub.C()
	}
	var feedC <-chan client.Event
	if e.opts.Feed != nil {
		feedC = e.opts.Feed.Events()
	}

	ticker := e.opts.Clock.NewTicker(e.opts.PollInterval)
	defer e.teardown(ticker)

	e.setState(StateReady)
	e.flush()

	for {
		var applied chan struct{}

		select {
		case <-ctx.Done():
			return nil

		case <-e.closed:
			return nil

		case req := <-e.edits:
			e.applyEdit(req.title, req.content)
			applied = req.done

		case fn := <-e.work:
			fn()

		case <-ticker.C:
			e.startPoll()

		case remote, ok := <-busC:
			if !ok {
				busC = nil
				continue
			}
			e.adopt(remote)

		case ev, ok := <-feedC:
			if !ok {
				feedC = nil
				continue
			}
			e.handleFeedEvent(ev)
		}

		e.flush()
		if applied != nil {
			close(applied)
		}
		if e.state == StateError {
			return fmt.Errorf("shared note %s: %w", e.noteID, e.lastErr)
		}
	}
}

func (e *Engine) load(ctx context.Context) (*domain.SharedNote, error) {
	type result struct {
		note *domain.SharedNote
		err  error
	}

	e.flush()
	ch := make(chan result, 1)
	go func() {
		note, err := e.api.Fetch(e.callCtx, e.noteID)
		ch <- result{note, err}
	}()

	select {
	case <-ctx.Done():
		return nil, nil
	case <-e.closed:
		return nil, nil
	case res := <-ch:
		if res.err != nil {
			e.lastErr = res.err
			e.setState(StateError)
			e.flush()
			return nil, fmt.Errorf("load shared note %s: %w", e.noteID, res.err)
		}
		return res.note, nil
	}
}

func (e *Engine) teardown(ticker *clock.Ticker) {
	ticker.Stop()
	e.cancelDebounce()
	if e.sub != nil {
		e.sub.Close()
	}
	if e.opts.Feed != nil {
		e.opts.Feed.Close()
	}
	e.flush()
}

// post queues fn for the Run loop. It is dropped once the loop is gone.
func (e *Engine) post(fn func()) {
	select {
	case e.work <- fn:
	case <-e.done:
	}
}

func (e *Engine) applyEdit(title, content string) {
	e.title, e.content = title, content
	e.editSeq++

	if e.draftDiffers() {
		e.armDebounce()
	} else {
		e.cancelDebounce()
	}
}

func (e *Engine) draftDiffers() bool {
	return e.title != e.baseline.Title || e.content != e.baseline.Content
}

func (e *Engine) armDebounce() {
	e.cancelDebounce()

	e.debounceGen++
	gen := e.debounceGen
	e.debounce = e.opts.Clock.AfterFunc(e.opts.Debounce, func() {
		e.post(func() { e.debounceFired(gen) })
	})
}

func (e *Engine) cancelDebounce() {
	if e.debounce == nil {
		return
	}
	e.debounce.Stop()
	e.debounce = nil
	e.debounceGen++
}

func (e *Engine) debounceFired(gen uint64) {
	if gen != e.debounceGen {
		return
	}
	e.debounce = nil

	// A save in flight re-arms the timer when it completes.
	if e.saving {
		return
	}
	if e.draftDiffers() {
		e.startSave()
	}
}

func (e *Engine) startSave() {
	title, content, seq := e.title, e.content, e.editSeq
	e.saving = true
	e.saveEpoch++
	e.setState(StateSaving)

	go func() {
		note, err := e.api.Update(e.callCtx, e.noteID, title, content)
		e.post(func() { e.finishSave(seq, note, err) })
	}()
}

func (e *Engine) finishSave(seq uint64, note *domain.SharedNote, err error) {
	e.saving = false
	e.saveEpoch++
	e.setState(StateReady)

	if err != nil {
		if errors.Is(err, domain.ErrNoteNotFound) {
			e.fail(err)
			return
		}
		slogx.Warn(context.Background(), "shared note save failed", slogx.NoteID(e.noteID), slogx.Err(err))
		e.lastErr = err
		e.pollErr = false
		e.online = false
		return
	}

	e.lastErr = nil
	e.online = true
	e.lastSynced = e.opts.Clock.Now()

	if note.NewerThan(e.marker) {
		e.baseline = note
		e.marker = note.UpdatedAt
		if seq == e.editSeq {
			e.title, e.content = note.Title, note.Content
		}
	}

	if e.sub != nil {
		e.sub.Publish(note)
	}

	if e.draftDiffers() && e.debounce == nil {
		e.armDebounce()
	}
}

func (e *Engine) startPoll() {
	if e.polling {
		return
	}
	e.polling = true
	epoch := e.saveEpoch

	go func() {
		note, err := e.api.Fetch(e.callCtx, e.noteID)
		e.post(func() { e.finishPoll(epoch, note, err) })
	}()
}

func (e *Engine) finishPoll(epoch uint64, note *domain.SharedNote, err error) {
	e.polling = false

	if err != nil {
		if errors.Is(err, domain.ErrNoteNotFound) {
			e.fail(err)
			return
		}
		slogx.Debug(context.Background(), "shared note poll failed", slogx.NoteID(e.noteID), slogx.Err(err))
		e.online = false
		if e.lastErr == nil || e.pollErr {
			e.lastErr = err
			e.pollErr = true
		}
		return
	}

	e.online = true
	e.lastSynced = e.opts.Clock.Now()
	if e.pollErr {
		e.lastErr = nil
		e.pollErr = false
	}

	// A save overlapped the fetch, so the result may predate it.
	if e.saving || epoch != e.saveEpoch {
		return
	}
	e.reconcile(note)
}

func (e *Engine) handleFeedEvent(ev client.Event) {
	switch ev.Type {
	case client.EventUpdated:
		e.adopt(ev.Note)
	case client.EventDeleted:
		e.fail(domain.ErrNoteNotFound)
	case client.EventPresence:
		e.editors = ev.Editors
	}
}

// adopt takes a pushed record when it is newer than the marker. Pushes can
// arrive out of order; polling corrects anything they miss.
func (e *Engine) adopt(remote *domain.SharedNote) {
	if remote == nil || remote.ID != e.noteID || !remote.NewerThan(e.marker) {
		return
	}
	e.replaceWith(remote)
}

// reconcile takes the stored record whenever its marker differs from ours,
// so the surface follows the store even if the store moved backwards.
func (e *Engine) reconcile(stored *domain.SharedNote) {
	if stored == nil || stored.ID != e.noteID || stored.UpdatedAt.Equal(e.marker) {
		return
	}
	e.replaceWith(stored)
}

// replaceWith discards the draft and any unsaved local changes.
func (e *Engine) replaceWith(remote *domain.SharedNote) {
	resume := e.state
	e.setState(StateReceivingRemote)
	e.flush()

	e.cancelDebounce()
	e.baseline = remote.Clone()
	e.title, e.content = remote.Title, remote.Content
	e.marker = remote.UpdatedAt
	e.lastSynced = e.opts.Clock.Now()

	e.setState(resume)
}

func (e *Engine) fail(err error) {
	e.lastErr = err
	e.online = false
	e.cancelDebounce()
	e.setState(StateError)
}

func (e *Engine) setState(s State) {
	if e.state != s {
		slogx.Debug(context.Background(), "sync engine state change",
			slogx.NoteID(e.noteID),
			slog.String("from", e.state.String()),
			slog.String("to", s.String()),
		)
	}
	e.state = s
}

func (e *Engine) buildSnapshot() Snapshot {
	return Snapshot{
		NoteID:             e.noteID,
		State:              e.state,
		Title:              e.title,
		Content:            e.content,
		Baseline:           e.baseline.Clone(),
		LastKnownUpdatedAt: e.marker,
		Online:             e.online,
		SavePending:        e.debounce != nil,
		Polling:            e.polling,
		LastError:          e.lastErr,
		LastSyncedAt:       e.lastSynced,
		Editors:            e.editors,
	}
}

// flush publishes a new snapshot when something changed since the last one.
func (e *Engine) flush() {
	snap := e.buildSnapshot()

	e.snapMu.Lock()
	if snapshotEqual(e.snap, snap) {
		e.snapMu.Unlock()
		return
	}
	e.snap = snap
	e.snapMu.Unlock()

	if e.opts.OnChange != nil {
		e.opts.OnChange(snap)
	}
}

func snapshotEqual(a, b Snapshot) bool {
	return sameNote(a.Baseline, b.Baseline) &&
		a.State == b.State &&
		a.Title == b.Title &&
		a.Content == b.Content &&
		a.LastKnownUpdatedAt.Equal(b.LastKnownUpdatedAt) &&
		a.Online == b.Online &&
		a.SavePending == b.SavePending &&
		a.Polling == b.Polling &&
		sameError(a.LastError, b.LastError) &&
		a.LastSyncedAt.Equal(b.LastSyncedAt) &&
		a.Editors == b.Editors
}

func sameNote(a, b *domain.SharedNote) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Content == b.Content &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Error() == b.Error()
}
