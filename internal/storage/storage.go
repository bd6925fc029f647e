// Package storage persists sampled tables to relational databases.
//
// Backends register themselves by kind ("postgres", "sqlite", "sqlserver")
// and are selected at runtime through New. The schema written to the
// database is derived from the dataset metadata: primary keys, foreign-key
// references, and column types all carry over.
package storage

import (
	"context"
	"fmt"
	"sync"

	"synthdb/internal/metadata"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic sink for sampled tables.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the engine needs. Each backend implements these semantics in its
// own idiomatic way (pgx CopyFrom, SQLite transactional batches, etc).
type Repository interface {
	// Close releases any backend resources (connections, prepared statements, etc).
	//
	// Edge cases:
	//   - Implementations should be safe to call once at process shutdown.
	//   - Callers should treat Close as "call once".
	Close()

	// EnsureTables creates the tables described by specs if they do not
	// already exist, including primary-key and foreign-key clauses.
	// Specs must be ordered parents-first so references resolve.
	EnsureTables(ctx context.Context, specs []metadata.TableSpec) error

	// InsertRows bulk-inserts rows into a table and reports how many rows
	// were written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// ColumnType is the backend-independent storage type of a column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeReal
	TypeBool
)

// Column is one column of a table to create, with enough information for a
// backend to emit DDL.
type Column struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	References *metadata.Reference
}

// TableColumns derives the storage columns for a table from its metadata.
//
// Errors:
//   - Returns an error for a field type the storage layer cannot map.
func TableColumns(ts metadata.TableSpec) ([]Column, error) {
	cols := make([]Column, 0, len(ts.Fields))
	for _, f := range ts.Fields {
		ct, err := columnType(f)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", ts.Name, f.Name, err)
		}
		cols = append(cols, Column{
			Name:       f.Name,
			Type:       ct,
			PrimaryKey: f.Name == ts.PrimaryKey,
			References: f.Ref,
		})
	}
	return cols, nil
}

func columnType(f metadata.FieldSpec) (ColumnType, error) {
	switch f.Type {
	case metadata.TypeID:
		if f.Subtype == metadata.SubtypeString {
			return TypeText, nil
		}
		return TypeInteger, nil
	case metadata.TypeNumerical:
		if f.Subtype == metadata.SubtypeInteger {
			return TypeInteger, nil
		}
		return TypeReal, nil
	case metadata.TypeCategorical:
		return TypeText, nil
	case metadata.TypeBoolean:
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("unsupported field type %q", f.Type)
	}
}

// ---- factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
