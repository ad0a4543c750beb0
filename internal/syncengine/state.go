package syncengine

import (
	"time"

	"shared-notes-server/internal/domain"
)

type State int

const (
	StateLoading State = iota
	StateReady
	StateSaving
	StateReceivingRemote
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	case StateReceivingRemote:
		return "receiving-remote"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of one surface's synchronization state.
type Snapshot struct {
	NoteID  string
	State   State
	Title   string
	Content string

	// Baseline is the last record known to be stored, either loaded,
	// saved by this surface or adopted from elsewhere.
	Baseline           *domain.SharedNote
	LastKnownUpdatedAt domain.Timestamp

	Online       bool
	SavePending  bool
	Polling      bool
	LastError    error
	LastSyncedAt time.Time

	// Editors is the live subscription count last reported by the server,
	// zero without a push feed.
	Editors int
}

// Dirty reports whether the draft differs from the baseline.
func (s Snapshot) Dirty() bool {
	if s.Baseline == nil {
		return false
	}
	return s.Title != s.Baseline.Title || s.Content != s.Baseline.Content
}
