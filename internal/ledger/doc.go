// Package ledger implements the activity ledger: actions, the activities that
// log them, and the notes that annotate those activities.
//
// A Ledger composes two intern tables (action names, note text) and three pair
// tables (action hierarchy, activity log, notations) over one SQLite file. Each
// identity gets its own file; see package tenant.
//
// Activities are identified by a surrogate ActivityID allocated on insert. The
// epoch-millisecond timestamp is an attribute of the activity, so two
// activities logged within the same millisecond remain distinct.
//
// Errors carry the failure kinds of package store (store.ErrNotFound,
// store.ErrDuplicateKey, store.ErrStorageUnavailable); nothing is collapsed
// to a zero ID.
package ledger
