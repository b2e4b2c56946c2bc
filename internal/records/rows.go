package records

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by ScanRow when the query matched nothing.
var ErrNotFound = errors.New("records: not found")

type document[T any] interface {
	*T
	setID(id string)
}

// CollectRows decodes (id, doc) rows into typed documents.
func CollectRows[T any, P document[T]](rows pgx.Rows) ([]T, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scanDocument[T, P](row)
	})
}

// ScanRow decodes a single (id, doc) row.
func ScanRow[T any, P document[T]](row pgx.Row) (T, error) {
	v, err := scanDocument[T, P](row)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

func scanDocument[T any, P document[T]](row pgx.Row) (T, error) {
	var (
		v   T
		id  string
		raw []byte
	)
	if err := row.Scan(&id, &raw); err != nil {
		return v, err
	}
	if err := Decode(raw, &v); err != nil {
		return v, fmt.Errorf("records: decode %s: %w", id, err)
	}
	P(&v).setID(id)
	return v, nil
}
