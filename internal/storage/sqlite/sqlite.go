package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"synthdb/internal/metadata"
	"synthdb/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite enforces foreign keys only when PRAGMA foreign_keys is on.
//     database/sql pools connections, so the pragma must ride on the DSN
//     (the driver applies it to every new connection); an Exec would only
//     reach one pooled connection.
//   - Inserts run inside a single transaction per table. SQLite commits
//     are fsync-bound, so per-row autocommit is orders of magnitude slower.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", withForeignKeys(cfg.DSN))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func withForeignKeys(dsn string) string {
	const pragma = "_pragma=foreign_keys(1)"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragma
	}
	return dsn + "?" + pragma
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates tables if they do not exist, keeping startup idempotent.
func (r *Repo) EnsureTables(ctx context.Context, specs []metadata.TableSpec) error {
	for _, ts := range specs {
		ddl, err := buildCreateSQL(ts)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", ts.Name, err)
		}
	}
	return nil
}

// InsertRows inserts all rows inside one transaction using a prepared
// statement.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(");")

	stmt, err := tx.PrepareContext(ctx, b.String())
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	var total int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return total, err
	}
	return total, nil
}

func buildCreateSQL(ts metadata.TableSpec) (string, error) {
	cols, err := storage.TableColumns(ts)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(ts.Name))
	b.WriteString(" (")

	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(sqliteType(c.Type))
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.References != nil {
			b.WriteString(" REFERENCES ")
			b.WriteString(sqlIdent(c.References.Table))
			b.WriteString(" (")
			b.WriteString(sqlIdent(c.References.Field))
			b.WriteString(")")
		}
	}

	b.WriteString(");")
	return b.String(), nil
}

// sqliteType maps a storage type to a SQLite type affinity. SQLite has no
// native BOOLEAN; INTEGER 0/1 is the conventional encoding.
func sqliteType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger, storage.TypeBool:
		return "INTEGER"
	case storage.TypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
