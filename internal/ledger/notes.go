package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/okra/internal/store"
)

// AnnotateActivity attaches text to an existing activity and returns the
// note's ID. Identical text shares one note ID across activities.
func (l *Ledger) AnnotateActivity(ctx context.Context, activity ActivityID, text string) (NoteID, error) {
	var note NoteID
	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		if _, err := l.activities.With(tx).Get(ctx, store.ID(activity)); err != nil {
			return err
		}

		id, _, err := l.notes.With(tx).Create(ctx, text)
		if err != nil {
			return err
		}

		if _, err := l.notations.With(tx).Insert(ctx, int64(activity), int64(id)); err != nil {
			return err
		}
		note = NoteID(id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("annotate activity %d: %w", activity, err)
	}
	return note, nil
}

// Notations returns up to limit note IDs attached to activity that are greater
// than after, in ascending order. Pass after=0 for the first page.
func (l *Ledger) Notations(ctx context.Context, activity ActivityID, after NoteID, limit int) ([]NoteID, error) {
	values, err := l.notations.GetPage(ctx, int64(activity), int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("notations: %w", err)
	}

	out := make([]NoteID, len(values))
	for i, v := range values {
		out[i] = NoteID(v)
	}
	return out, nil
}

// NotationsAfter pages through every attachment on activity, including
// repeats of one note, ordered by note ID then insertion. Pass the zero
// Notation for the first page and the last returned one for the next.
func (l *Ledger) NotationsAfter(ctx context.Context, activity ActivityID, after Notation, limit int) ([]Notation, error) {
	cursor := store.Pair[int64]{ID: store.ID(after.ID), Key: int64(activity), Value: int64(after.Note)}
	rows, err := l.notations.GetPageAfter(ctx, int64(activity), cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("notations: %w", err)
	}

	out := make([]Notation, len(rows))
	for i, row := range rows {
		out[i] = Notation{ID: NotationID(row.ID), Note: NoteID(row.Value)}
	}
	return out, nil
}

// NotesOf is Notations with the note text resolved, one entry per notation.
func (l *Ledger) NotesOf(ctx context.Context, activity ActivityID, after NoteID, limit int) ([]Note, error) {
	ids, err := l.Notations(ctx, activity, after, limit)
	if err != nil {
		return nil, err
	}

	found, err := l.NotesBulk(ctx, ids)
	if err != nil {
		return nil, err
	}
	text := make(map[NoteID]string, len(found))
	for _, n := range found {
		text[n.ID] = n.Text
	}

	out := make([]Note, 0, len(ids))
	for _, id := range ids {
		if t, ok := text[id]; ok {
			out = append(out, Note{ID: id, Text: t})
		}
	}
	return out, nil
}

// Note returns the text of a note, or store.ErrNotFound.
func (l *Ledger) Note(ctx context.Context, id NoteID) (string, error) {
	text, err := l.notes.Get(ctx, store.ID(id))
	if err != nil {
		return "", fmt.Errorf("note: %w", err)
	}
	return text, nil
}

// NotesBulk returns the notes for ids in ascending ID order, omitting IDs
// that do not exist.
func (l *Ledger) NotesBulk(ctx context.Context, ids []NoteID) ([]Note, error) {
	keys := make([]store.ID, len(ids))
	for i, id := range ids {
		keys[i] = store.ID(id)
	}

	rows, err := l.notes.GetBulk(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("notes bulk: %w", err)
	}

	out := make([]Note, len(rows))
	for i, row := range rows {
		out[i] = Note{ID: NoteID(row.ID), Text: row.Text}
	}
	return out, nil
}
