package sync

import (
	"context"
	"time"

	"github.com/marcus/till/internal/syncclient"
)

// Status is the aggregate sync state shown by the status indicator.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Sender delivers one mutation to the backend. *syncclient.Client
// implements it.
type Sender interface {
	Send(ctx context.Context, m syncclient.Mutation) (*syncclient.MutationResponse, error)
}

// Defaults used when Config leaves a field zero.
const (
	DefaultRetryCeiling = 5
	DefaultEntryTimeout = 15 * time.Second
)

// Config tunes the engine.
type Config struct {
	// RetryCeiling is how many failed attempts an entry may accumulate
	// before it is dead-lettered.
	RetryCeiling int
	// EntryTimeout bounds each send; expiry counts as a failed attempt.
	EntryTimeout time.Duration
	// Online reports connectivity. Nil means always online.
	Online func() bool
}

// Result summarises one drain.
type Result struct {
	Status         Status
	Sent           int   // entries acknowledged, folded ones included
	Conflicts      int   // conflicts resolved in favour of the remote copy
	Forced         int   // conflicts resolved by re-sending the local copy
	DeadLettered   int   // entries moved to the dead-letter state
	Dropped        int   // DELETEs of never-synced records, dropped locally
	Remaining      int   // live entries left after the drain
	FailedSequence int64 // entry the drain stopped at, if any
}
