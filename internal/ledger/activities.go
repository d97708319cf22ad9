package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/okra/internal/store"
)

// LogActivity records that action happened now.
func (l *Ledger) LogActivity(ctx context.Context, action ActionID) (Activity, error) {
	return l.LogActivityAt(ctx, action, l.nowMillis())
}

// LogActivityAt records that action happened at the given epoch milliseconds.
// The action must exist.
func (l *Ledger) LogActivityAt(ctx context.Context, action ActionID, at int64) (Activity, error) {
	var activity Activity
	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		var err error
		activity, err = l.logAt(ctx, tx, action, at)
		return err
	})
	if err != nil {
		return Activity{}, fmt.Errorf("log activity: %w", err)
	}
	return activity, nil
}

// LogActivities records every action in actions at one shared timestamp.
// The batch is written in a single transaction: either every action is
// logged or none is.
func (l *Ledger) LogActivities(ctx context.Context, actions []ActionID) (Batch, error) {
	batch := Batch{At: l.nowMillis(), Activities: make([]ActivityID, 0, len(actions))}

	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		for _, action := range actions {
			activity, err := l.logAt(ctx, tx, action, batch.At)
			if err != nil {
				return err
			}
			batch.Activities = append(batch.Activities, activity.ID)
		}
		return nil
	})
	if err != nil {
		return Batch{}, fmt.Errorf("log activities: %w", err)
	}
	return batch, nil
}

func (l *Ledger) logAt(ctx context.Context, tx *store.Tx, action ActionID, at int64) (Activity, error) {
	if _, err := l.actions.With(tx).Get(ctx, store.ID(action)); err != nil {
		return Activity{}, fmt.Errorf("action %d: %w", action, err)
	}

	id, err := l.activities.With(tx).Insert(ctx, at, int64(action))
	if err != nil {
		return Activity{}, err
	}
	return Activity{ID: ActivityID(id), At: at, Action: action}, nil
}

// Activity returns a logged activity by ID, or store.ErrNotFound.
func (l *Ledger) Activity(ctx context.Context, id ActivityID) (Activity, error) {
	row, err := l.activities.Get(ctx, store.ID(id))
	if err != nil {
		return Activity{}, fmt.Errorf("activity: %w", err)
	}
	return toActivity(row), nil
}

// ActivitiesBetween returns up to limit activities with from <= At < to,
// oldest first. An empty or inverted window yields no activities.
func (l *Ledger) ActivitiesBetween(ctx context.Context, from, to int64, limit int) ([]Activity, error) {
	rows, err := l.activities.PageLeft(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("activities between: %w", err)
	}
	return toActivities(rows), nil
}

// ActivitiesAfter continues an ActivitiesBetween scan after the last activity
// of the previous page.
func (l *Ledger) ActivitiesAfter(ctx context.Context, from, to int64, after Activity, limit int) ([]Activity, error) {
	cursor := store.Pair[int64]{ID: store.ID(after.ID), Key: after.At, Value: int64(after.Action)}
	rows, err := l.activities.PageLeftAfter(ctx, from, to, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("activities after: %w", err)
	}
	return toActivities(rows), nil
}

func toActivity(row store.Pair[int64]) Activity {
	return Activity{ID: ActivityID(row.ID), At: row.Key, Action: ActionID(row.Value)}
}

func toActivities(rows []store.Pair[int64]) []Activity {
	out := make([]Activity, len(rows))
	for i, row := range rows {
		out[i] = toActivity(row)
	}
	return out
}
