package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/storage"
)

const (
	getItemQuery = `SELECT value FROM sessionkit_state WHERE name = $1`

	setItemQuery = `INSERT INTO sessionkit_state (name, value, date_modified)
VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, date_modified = NOW()`

	removeItemQuery = `DELETE FROM sessionkit_state WHERE name = $1`
)

// Adapter persists items in a single key-value table. Statements are
// prepared once at construction; Close releases them but leaves the
// underlying *sql.DB to its owner.
type Adapter struct {
	db *sql.DB

	stmts preparedStatements
}

type preparedStatements struct {
	getItem    *sql.Stmt
	setItem    *sql.Stmt
	removeItem *sql.Stmt
}

var _ storage.StateStore = (*Adapter)(nil)

func NewAdapter(db *sql.DB) (*Adapter, error) {
	if db == nil {
		return nil, errors.New("postgres storage: db is required")
	}

	adapter := &Adapter{db: db}

	specs := []struct {
		label  string
		query  string
		assign func(*preparedStatements, *sql.Stmt)
	}{
		{
			label: "get item",
			query: getItemQuery,
			assign: func(ps *preparedStatements, stmt *sql.Stmt) {
				ps.getItem = stmt
			},
		},
		{
			label: "set item",
			query: setItemQuery,
			assign: func(ps *preparedStatements, stmt *sql.Stmt) {
				ps.setItem = stmt
			},
		},
		{
			label: "remove item",
			query: removeItemQuery,
			assign: func(ps *preparedStatements, stmt *sql.Stmt) {
				ps.removeItem = stmt
			},
		},
	}

	for _, spec := range specs {
		stmt, err := db.Prepare(spec.query)
		if err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("postgres storage: failed to prepare %s statement: %w", spec.label, err)
		}
		spec.assign(&adapter.stmts, stmt)
	}

	return adapter, nil
}

func (a *Adapter) GetItem(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := a.stmts.getItem.QueryRowContext(ctx, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("postgres storage: failed to get item %q", name), err)
	}
	return value, true, nil
}

func (a *Adapter) SetItem(ctx context.Context, name string, value string) error {
	if _, err := a.stmts.setItem.ExecContext(ctx, name, value); err != nil {
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("postgres storage: failed to set item %q", name), err)
	}
	return nil
}

func (a *Adapter) RemoveItem(ctx context.Context, name string) error {
	if _, err := a.stmts.removeItem.ExecContext(ctx, name); err != nil {
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("postgres storage: failed to remove item %q", name), err)
	}
	return nil
}

func (a *Adapter) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{a.stmts.getItem, a.stmts.setItem, a.stmts.removeItem} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
