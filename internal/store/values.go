package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Interned is one row of a Values table.
type Interned struct {
	ID   ID
	Text string
}

// Values is a deduplicating text → ID table ("intern table").
//
// Text is unique across the table and normalized to NFC before it is stored
// or compared, so canonically-equivalent strings share one ID. IDs are stable
// for the lifetime of a row and never reused.
type Values struct {
	q      querier
	table  string
	column string
}

// NewValues creates the backing table if needed and returns a Values bound to db.
func NewValues(ctx context.Context, db *DB, table, column string) (*Values, error) {
	if err := checkIdentifiers(table, column); err != nil {
		return nil, fmt.Errorf("new values: %w", err)
	}

	_, err := db.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			%[2]s TEXT NOT NULL UNIQUE
		)
	`, table, column))
	if err != nil {
		return nil, fmt.Errorf("new values %s: %w", table, Classify(err))
	}

	return &Values{q: db.db, table: table, column: column}, nil
}

// With returns a copy of v whose statements run inside tx.
func (v *Values) With(tx *Tx) *Values {
	c := *v
	c.q = tx.tx
	return &c
}

// Create interns text and returns its ID.
//
// If the text is already present the existing ID is returned and no row is
// written, so Create is idempotent. created reports whether a new row was
// inserted.
func (v *Values) Create(ctx context.Context, text string) (id ID, created bool, err error) {
	text = norm.NFC.String(text)

	err = atomically(ctx, v.q, func(q querier) error {
		result, err := q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (%s) VALUES (?)
			ON CONFLICT DO NOTHING
		`, v.table, v.column), text)
		if err != nil {
			return fmt.Errorf("insert: %w", Classify(err))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", Classify(err))
		}

		if rowsAffected > 0 {
			lastID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", Classify(err))
			}
			id, created = ID(lastID), true
			return nil
		}

		// Conflict - text already interned, fetch the existing ID
		id, err = v.lookup(ctx, q, text)
		if err != nil {
			return fmt.Errorf("select existing: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("create %s: %w", v.table, err)
	}
	return id, created, nil
}

// Lookup returns the ID of text, or ErrNotFound if it was never interned.
func (v *Values) Lookup(ctx context.Context, text string) (ID, error) {
	id, err := v.lookup(ctx, v.q, norm.NFC.String(text))
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", v.table, err)
	}
	return id, nil
}

func (v *Values) lookup(ctx context.Context, q querier, text string) (ID, error) {
	var id ID
	err := q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE %s = ?`, v.table, v.column,
	), text).Scan(&id)
	if err != nil {
		return 0, Classify(err)
	}
	return id, nil
}

// Get returns the text stored under id, or ErrNotFound.
func (v *Values) Get(ctx context.Context, id ID) (string, error) {
	var text string
	err := v.q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = ?`, v.column, v.table,
	), int64(id)).Scan(&text)
	if err != nil {
		return "", fmt.Errorf("get %s %d: %w", v.table, id, Classify(err))
	}
	return text, nil
}

// SearchPage returns up to limit rows whose text contains substr, with
// ID strictly greater than after, in ascending ID order.
//
// An empty substr matches every row. substr is matched literally. Pass
// after=0 for the first page and the last returned ID for the next; a page
// shorter than limit is the last one.
func (v *Values) SearchPage(ctx context.Context, substr string, after ID, limit int) ([]Interned, error) {
	if limit <= 0 {
		return []Interned{}, nil
	}
	substr = norm.NFC.String(substr)

	rows, err := v.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, %[2]s FROM %[1]s
		WHERE id > ? AND (? = '' OR instr(%[2]s, ?) > 0)
		ORDER BY id ASC
		LIMIT ?
	`, v.table, v.column), int64(after), substr, substr, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", v.table, Classify(err))
	}
	defer rows.Close()

	return scanInterned(rows, v.table)
}

// GetBulk returns the rows for ids in ascending ID order.
// IDs that do not exist are omitted without error.
func (v *Values) GetBulk(ctx context.Context, ids []ID) ([]Interned, error) {
	if len(ids) == 0 {
		return []Interned{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}

	rows, err := v.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, %s FROM %s
		WHERE id IN (%s)
		ORDER BY id ASC
	`, v.column, v.table, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("get bulk %s: %w", v.table, Classify(err))
	}
	defer rows.Close()

	return scanInterned(rows, v.table)
}

func scanInterned(rows *sql.Rows, table string) ([]Interned, error) {
	out := []Interned{}
	for rows.Next() {
		var row Interned
		if err := rows.Scan(&row.ID, &row.Text); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, Classify(err))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, Classify(err))
	}
	return out, nil
}
