// Package metadata defines the user-supplied description of a relational
// dataset: tables, typed columns, primary keys, foreign-key references, and
// per-table constraint declarations.
//
// The spec types need to live in a place every engine package can import
// without circular deps, so this package has no dependency on the modeling
// layers.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
)

// Field types understood by the modeling layer.
const (
	TypeID          = "id"
	TypeNumerical   = "numerical"
	TypeCategorical = "categorical"
	TypeBoolean     = "boolean"
)

// ID subtypes. Integer keys are issued from a monotonic allocator,
// string keys are random UUIDs.
const (
	SubtypeInteger = "integer"
	SubtypeFloat   = "float"
	SubtypeString  = "string"
)

// Spec is the root metadata object: every table in the dataset.
type Spec struct {
	Tables []TableSpec `json:"tables"`
}

// TableSpec describes one table.
type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  string           `json:"primary_key"`
	Fields      []FieldSpec      `json:"fields"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

// FieldSpec describes one column.
type FieldSpec struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// Ref marks the column as a foreign key into another table.
	Ref *Reference `json:"ref,omitempty"`
}

// Reference points a foreign-key column at a parent table's column.
type Reference struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// ConstraintSpec declares one constraint over a table's columns.
// Kind selects a registered constraint implementation; Options carry
// kind-specific settings (e.g. low/high for "between").
type ConstraintSpec struct {
	Kind    string         `json:"kind"`
	Columns []string       `json:"columns"`
	Options map[string]any `json:"options,omitempty"`
}

// ForeignKey is a resolved child -> parent relationship.
type ForeignKey struct {
	Column   string
	Table    string // referenced (parent) table
	Field    string // referenced column, normally the parent primary key
}

// Load reads a metadata JSON file.
func Load(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes metadata JSON and checks structural consistency.
func Parse(raw []byte) (*Spec, error) {
	var s Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("metadata: parse: %w", err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// TableNames returns table names in declaration order.
func (s *Spec) TableNames() []string {
	out := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.Name
	}
	return out
}

// Table returns the spec for a named table.
func (s *Spec) Table(name string) (TableSpec, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}

// Field returns the spec of one column of one table.
func (t TableSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ColumnNames returns the table's column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}

// ForeignKeys returns the declared foreign keys of a table, in field
// declaration order. The first entry is the table's driving relationship
// during sampling.
func (s *Spec) ForeignKeys(name string) []ForeignKey {
	t, ok := s.Table(name)
	if !ok {
		return nil
	}
	var out []ForeignKey
	for _, f := range t.Fields {
		if f.Ref == nil {
			continue
		}
		out = append(out, ForeignKey{Column: f.Name, Table: f.Ref.Table, Field: f.Ref.Field})
	}
	return out
}

// Constraints returns the ordered constraint declarations for a table.
func (s *Spec) Constraints(name string) []ConstraintSpec {
	t, ok := s.Table(name)
	if !ok {
		return nil
	}
	return t.Constraints
}

// check validates internal consistency that does not need data:
// unique table and column names, primary keys present, FK targets known,
// constraint columns present.
func (s *Spec) check() error {
	seen := make(map[string]struct{}, len(s.Tables))
	for _, t := range s.Tables {
		if t.Name == "" {
			return fmt.Errorf("metadata: table with empty name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("metadata: duplicate table %q", t.Name)
		}
		seen[t.Name] = struct{}{}

		cols := make(map[string]struct{}, len(t.Fields))
		for _, f := range t.Fields {
			if f.Name == "" {
				return fmt.Errorf("metadata: table %s: field with empty name", t.Name)
			}
			if _, dup := cols[f.Name]; dup {
				return fmt.Errorf("metadata: table %s: duplicate column %q", t.Name, f.Name)
			}
			cols[f.Name] = struct{}{}
		}

		if t.PrimaryKey == "" {
			return fmt.Errorf("metadata: table %s: primary_key is required", t.Name)
		}
		if _, ok := cols[t.PrimaryKey]; !ok {
			return fmt.Errorf("metadata: table %s: primary key %q is not a declared column", t.Name, t.PrimaryKey)
		}

		for _, c := range t.Constraints {
			if c.Kind == "" {
				return fmt.Errorf("metadata: table %s: constraint with empty kind", t.Name)
			}
			for _, col := range c.Columns {
				if _, ok := cols[col]; !ok {
					return fmt.Errorf("metadata: table %s: constraint %s references unknown column %q", t.Name, c.Kind, col)
				}
			}
		}
	}

	// FK targets must exist after all tables are known.
	for _, t := range s.Tables {
		for _, f := range t.Fields {
			if f.Ref == nil {
				continue
			}
			pt, ok := s.Table(f.Ref.Table)
			if !ok {
				return fmt.Errorf("metadata: table %s: column %s references unknown table %q", t.Name, f.Name, f.Ref.Table)
			}
			if _, ok := pt.Field(f.Ref.Field); !ok {
				return fmt.Errorf("metadata: table %s: column %s references unknown column %s.%s", t.Name, f.Name, f.Ref.Table, f.Ref.Field)
			}
		}
	}
	return nil
}
