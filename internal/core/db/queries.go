package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// ErrQueryNotFound reports a query name missing from the embedded files.
var ErrQueryNotFound = errors.New("query not found")

// Queries runs named statements from the embedded .sql files, rebinding ?
// placeholders for the connected driver.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries parses every embedded query file.
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	var sb strings.Builder
	err := fs.WalkDir(queriesFS, "queries", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		sb.Write(content)
		sb.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db}, nil
}

// DB returns the underlying connection.
func (q *Queries) DB() *sqlx.DB { return q.db }

func (q *Queries) raw(name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrQueryNotFound, name)
	}
	return q.db.Rebind(query), nil
}

// Exec runs a named statement.
func (q *Queries) Exec(name string, args ...any) (sql.Result, error) {
	return q.ExecContext(context.Background(), name, args...)
}

// Get scans a single row into dest.
func (q *Queries) Get(name string, dest any, args ...any) error {
	return q.GetContext(context.Background(), name, dest, args...)
}

// Select scans all rows into the slice dest.
func (q *Queries) Select(name string, dest any, args ...any) error {
	return q.SelectContext(context.Background(), name, dest, args...)
}

func (q *Queries) ExecContext(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, err := q.raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, args...)
}

func (q *Queries) GetContext(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, query, args...)
}

func (q *Queries) SelectContext(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, query, args...)
}
