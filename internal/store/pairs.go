package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PairValue is the set of value types a Pairs table can hold.
type PairValue interface {
	int64 | string
}

// Pair is one row of a Pairs table. ID is the surrogate row ID assigned on
// insert; it orders rows that share a key.
type Pair[V PairValue] struct {
	ID    ID
	Key   int64
	Value V
}

// Pairs is an ordered key → value multi-map ("pair relation").
//
// One key may hold any number of values, and duplicate (key, value) rows are
// legal: they represent repeated events. Every row gets a monotonically
// allocated surrogate ID.
type Pairs[V PairValue] struct {
	q        querier
	table    string
	keyCol   string
	valueCol string
}

// NewPairs creates the backing table if needed and returns a Pairs bound to db.
func NewPairs[V PairValue](ctx context.Context, db *DB, table, keyCol, valueCol string) (*Pairs[V], error) {
	if err := checkIdentifiers(table, keyCol, valueCol); err != nil {
		return nil, fmt.Errorf("new pairs: %w", err)
	}

	valueType := "INTEGER"
	var zero V
	if _, ok := any(zero).(string); ok {
		valueType = "TEXT"
	}

	_, err := db.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			%[2]s INTEGER NOT NULL,
			%[3]s %[4]s NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_%[2]s ON %[1]s (%[2]s, %[3]s);
	`, table, keyCol, valueCol, valueType))
	if err != nil {
		return nil, fmt.Errorf("new pairs %s: %w", table, Classify(err))
	}

	return &Pairs[V]{q: db.db, table: table, keyCol: keyCol, valueCol: valueCol}, nil
}

// With returns a copy of p whose statements run inside tx.
func (p *Pairs[V]) With(tx *Tx) *Pairs[V] {
	c := *p
	c.q = tx.tx
	return &c
}

// Insert appends a (key, value) row and returns its surrogate ID.
// No uniqueness is enforced.
func (p *Pairs[V]) Insert(ctx context.Context, key int64, value V) (ID, error) {
	result, err := p.q.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, %s) VALUES (?, ?)`, p.table, p.keyCol, p.valueCol,
	), key, value)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", p.table, Classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: last insert id: %w", p.table, Classify(err))
	}
	return ID(id), nil
}

// Get returns the row with surrogate ID id, or ErrNotFound.
func (p *Pairs[V]) Get(ctx context.Context, id ID) (Pair[V], error) {
	var row Pair[V]
	err := p.q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, %s, %s FROM %s WHERE id = ?`, p.keyCol, p.valueCol, p.table,
	), int64(id)).Scan(&row.ID, &row.Key, &row.Value)
	if err != nil {
		return Pair[V]{}, fmt.Errorf("get %s %d: %w", p.table, id, Classify(err))
	}
	return row, nil
}

// GetPage returns up to limit values stored under key that are strictly
// greater than after, ordered by value then insertion.
//
// The cursor is a value: pass the zero value for the first page and the last
// returned value for the next. A value <= after is never returned, so paging
// always makes progress and terminates even when values repeat. Repeats of one
// value are returned together on the same page unless the page fills first,
// in which case the remaining repeats are skipped. Use GetPageAfter when every
// row must be seen.
func (p *Pairs[V]) GetPage(ctx context.Context, key int64, after V, limit int) ([]V, error) {
	if limit <= 0 {
		return []V{}, nil
	}

	rows, err := p.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[3]s FROM %[1]s
		WHERE %[2]s = ? AND %[3]s > ?
		ORDER BY %[3]s ASC, id ASC
		LIMIT ?
	`, p.table, p.keyCol, p.valueCol), key, after, limit)
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", p.table, Classify(err))
	}
	defer rows.Close()

	out := []V{}
	for rows.Next() {
		var v V
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.table, Classify(err))
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", p.table, Classify(err))
	}
	return out, nil
}

// GetPageAfter returns up to limit rows stored under key that sort after the
// row after, ordered by value then insertion. Pass the zero Pair for the first
// page and the last returned row for the next. Repeated values that straddle a
// page boundary are neither skipped nor repeated.
func (p *Pairs[V]) GetPageAfter(ctx context.Context, key int64, after Pair[V], limit int) ([]Pair[V], error) {
	if limit <= 0 {
		return []Pair[V]{}, nil
	}

	rows, err := p.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, %[2]s, %[3]s FROM %[1]s
		WHERE %[2]s = ?
		  AND (%[3]s > ? OR (%[3]s = ? AND id > ?))
		ORDER BY %[3]s ASC, id ASC
		LIMIT ?
	`, p.table, p.keyCol, p.valueCol), key, after.Value, after.Value, int64(after.ID), limit)
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", p.table, Classify(err))
	}
	defer rows.Close()

	return scanPairs[V](rows, p.table)
}

// PageLeft returns up to limit rows with from <= key < to, ordered by key then
// insertion. An empty or inverted interval yields no rows.
func (p *Pairs[V]) PageLeft(ctx context.Context, from, to int64, limit int) ([]Pair[V], error) {
	if limit <= 0 || from >= to {
		return []Pair[V]{}, nil
	}

	rows, err := p.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, %[2]s, %[3]s FROM %[1]s
		WHERE %[2]s >= ? AND %[2]s < ?
		ORDER BY %[2]s ASC, id ASC
		LIMIT ?
	`, p.table, p.keyCol, p.valueCol), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("page left %s: %w", p.table, Classify(err))
	}
	defer rows.Close()

	return scanPairs[V](rows, p.table)
}

// PageLeftAfter continues a PageLeft scan past the row after, which must be
// the last row of the previous page. Rows sharing a key are never skipped or
// repeated across pages.
func (p *Pairs[V]) PageLeftAfter(ctx context.Context, from, to int64, after Pair[V], limit int) ([]Pair[V], error) {
	if limit <= 0 || from >= to {
		return []Pair[V]{}, nil
	}

	rows, err := p.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, %[2]s, %[3]s FROM %[1]s
		WHERE %[2]s >= ? AND %[2]s < ?
		  AND (%[2]s > ? OR (%[2]s = ? AND id > ?))
		ORDER BY %[2]s ASC, id ASC
		LIMIT ?
	`, p.table, p.keyCol, p.valueCol), from, to, after.Key, after.Key, int64(after.ID), limit)
	if err != nil {
		return nil, fmt.Errorf("page left %s: %w", p.table, Classify(err))
	}
	defer rows.Close()

	return scanPairs[V](rows, p.table)
}

func scanPairs[V PairValue](rows *sql.Rows, table string) ([]Pair[V], error) {
	out := []Pair[V]{}
	for rows.Next() {
		var row Pair[V]
		if err := rows.Scan(&row.ID, &row.Key, &row.Value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, Classify(err))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, Classify(err))
	}
	return out, nil
}
