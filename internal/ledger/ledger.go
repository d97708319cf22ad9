package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/okra/internal/clock"
	"github.com/roach88/okra/internal/store"
)

// SchemaVersion is the user_version a ledger database is stamped with.
const SchemaVersion = 1

const (
	actionHierarchyTable = "actionHierarchy"
	actionTable          = "actions"
	activityTable        = "activities"
	notationsTable       = "notations"
	noteTable            = "notes"

	actionCol   = "actionName"
	activityCol = "activity"
	childCol    = "child"
	noteCol     = "note"
	parentCol   = "parent"
	timeCol     = "time"
)

// ActionID identifies an action (a task definition).
type ActionID int64

// ActivityID identifies one logged occurrence of an action.
type ActivityID int64

// NoteID identifies an interned note.
type NoteID int64

// NotationID identifies one attachment of a note to an activity.
type NotationID int64

// Action is a named task definition.
type Action struct {
	ID   ActionID `json:"id"`
	Name string   `json:"name"`
}

// Activity is one occurrence of an action at a point in time.
type Activity struct {
	ID     ActivityID `json:"id"`
	At     int64      `json:"at"` // epoch milliseconds
	Action ActionID   `json:"action"`
}

// Note is the text attached to an activity.
type Note struct {
	ID   NoteID `json:"id"`
	Text string `json:"text"`
}

// Notation is one attachment of a note to an activity. The same note may be
// attached to one activity more than once.
type Notation struct {
	ID   NotationID `json:"id"`
	Note NoteID     `json:"note"`
}

// Batch is the result of logging several actions at one shared timestamp.
type Batch struct {
	At         int64        `json:"at"`
	Activities []ActivityID `json:"activities"`
}

// Ledger is the per-identity activity store.
type Ledger struct {
	db    *store.DB
	owned bool
	clock clock.Clock

	actions    *store.Values
	notes      *store.Values
	hierarchy  *store.Pairs[int64]
	activities *store.Pairs[int64]
	notations  *store.Pairs[int64]
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used to stamp activities.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// Open opens (creating if needed) the ledger stored at path.
// The returned Ledger owns the database and must be closed.
func Open(ctx context.Context, path string, opts ...Option) (*Ledger, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	l, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// New builds a ledger on an already open database, creating its tables if
// needed. The caller keeps ownership of db.
func New(ctx context.Context, db *store.DB, opts ...Option) (*Ledger, error) {
	l := &Ledger{db: db, clock: clock.System{}}
	for _, opt := range opts {
		opt(l)
	}

	var err error
	if l.actions, err = store.NewValues(ctx, db, actionTable, actionCol); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if l.notes, err = store.NewValues(ctx, db, noteTable, noteCol); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if l.hierarchy, err = store.NewPairs[int64](ctx, db, actionHierarchyTable, parentCol, childCol); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if l.activities, err = store.NewPairs[int64](ctx, db, activityTable, timeCol, actionCol); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if l.notations, err = store.NewPairs[int64](ctx, db, notationsTable, activityCol, noteCol); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.StampSchema(ctx, SchemaVersion); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return l, nil
}

// Close releases the database if the ledger opened it.
func (l *Ledger) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) nowMillis() int64 {
	return clock.Millis(l.clock.Now())
}
