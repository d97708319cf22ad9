package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/okra/internal/store"
)

// CreateAction interns an action name and returns its ID. Creating a name
// that already exists returns the existing ID.
func (l *Ledger) CreateAction(ctx context.Context, name string) (ActionID, error) {
	id, _, err := l.actions.Create(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("create action: %w", err)
	}
	return ActionID(id), nil
}

// CreateChildAction interns name and links it under parent in one
// transaction, returning the action with its stored name. If parent does not
// exist nothing is written and the error wraps store.ErrNotFound.
func (l *Ledger) CreateChildAction(ctx context.Context, name string, parent ActionID) (Action, error) {
	var action Action
	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		actions := l.actions.With(tx)
		if _, err := actions.Get(ctx, store.ID(parent)); err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		id, _, err := actions.Create(ctx, name)
		if err != nil {
			return err
		}
		if _, err := l.hierarchy.With(tx).Insert(ctx, int64(parent), int64(id)); err != nil {
			return err
		}
		stored, err := actions.Get(ctx, id)
		if err != nil {
			return err
		}
		action = Action{ID: ActionID(id), Name: stored}
		return nil
	})
	if err != nil {
		return Action{}, fmt.Errorf("create action under %d: %w", parent, err)
	}
	return action, nil
}

// ActionName returns the name of an action, or store.ErrNotFound.
func (l *Ledger) ActionName(ctx context.Context, id ActionID) (string, error) {
	name, err := l.actions.Get(ctx, store.ID(id))
	if err != nil {
		return "", fmt.Errorf("action name: %w", err)
	}
	return name, nil
}

// SearchActions returns up to limit actions whose name contains substr, with
// ID greater than after, in ascending ID order. An empty substr lists all.
func (l *Ledger) SearchActions(ctx context.Context, substr string, after ActionID, limit int) ([]Action, error) {
	rows, err := l.actions.SearchPage(ctx, substr, store.ID(after), limit)
	if err != nil {
		return nil, fmt.Errorf("search actions: %w", err)
	}

	out := make([]Action, len(rows))
	for i, row := range rows {
		out[i] = Action{ID: ActionID(row.ID), Name: row.Text}
	}
	return out, nil
}

// LinkActions records parent as a parent of child. Both actions must exist.
// No cycle detection is performed.
func (l *Ledger) LinkActions(ctx context.Context, parent, child ActionID) error {
	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		actions := l.actions.With(tx)
		if _, err := actions.Get(ctx, store.ID(parent)); err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		if _, err := actions.Get(ctx, store.ID(child)); err != nil {
			return fmt.Errorf("child: %w", err)
		}
		_, err := l.hierarchy.With(tx).Insert(ctx, int64(parent), int64(child))
		return err
	})
	if err != nil {
		return fmt.Errorf("link actions %d -> %d: %w", parent, child, err)
	}
	return nil
}

// ChildActions returns up to limit child IDs of parent that are greater than
// after, in ascending order.
func (l *Ledger) ChildActions(ctx context.Context, parent, after ActionID, limit int) ([]ActionID, error) {
	values, err := l.hierarchy.GetPage(ctx, int64(parent), int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("child actions: %w", err)
	}

	out := make([]ActionID, len(values))
	for i, v := range values {
		out[i] = ActionID(v)
	}
	return out, nil
}
