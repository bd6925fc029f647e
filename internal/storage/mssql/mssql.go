package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"synthdb/internal/metadata"
	"synthdb/internal/storage"
)

// paramLimit caps parameters per statement. SQL Server rejects statements
// with more than 2100 parameters, so inserts are chunked below that.
const paramLimit = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlserver", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates tables that do not yet exist. SQL Server has no
// CREATE TABLE IF NOT EXISTS, so each statement is guarded by OBJECT_ID.
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

// InsertRows inserts rows in parameter-limit-sized batches inside one
// transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	perBatch := paramLimit / len(columns)
	if perBatch < 1 {
		perBatch = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for start := 0; start < len(rows); start += perBatch {
		end := start + perBatch
		if end > len(rows) {
			end = len(rows)
		}
		stmt, args := buildInsertSQL(table, columns, rows[start:end])
		res, err := tx.ExecContext(ctx, stmt, args...)
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

// buildInsertSQL constructs one multi-row INSERT and its args.
//
// Pure and deterministic so placeholder numbering can be unit tested
// without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func buildCreateSQL(ts metadata.TableSpec) (string, error) {
	cols, err := storage.TableColumns(ts)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "IF OBJECT_ID(N'%s', N'U') IS NULL ", ts.Name)
	b.WriteString("CREATE TABLE ")
	b.WriteString(msIdent(ts.Name))
	b.WriteString(" (")

	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(msType(c.Type, c.PrimaryKey || c.References != nil))
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.References != nil {
			b.WriteString(" REFERENCES ")
			b.WriteString(msIdent(c.References.Table))
			b.WriteString(" (")
			b.WriteString(msIdent(c.References.Field))
			b.WriteString(")")
		}
	}

	b.WriteString(");")
	return b.String(), nil
}

// msType maps a storage type to a SQL Server type. Keyed text columns use a
// bounded NVARCHAR because MAX types cannot participate in indexes.
func msType(t storage.ColumnType, keyed bool) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "FLOAT"
	case storage.TypeBool:
		return "BIT"
	default:
		if keyed {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
