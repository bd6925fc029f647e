package metadata

import (
	"fmt"

	"synthdb/internal/table"
)

// ValidateData checks the raw tables against the spec. All failures here are
// configuration errors: they are fatal and must surface before any modeling
// starts.
//
// Checks:
//   - every declared table is present with every declared column
//   - primary-key values are non-null and unique
//   - every foreign-key value exists among the referenced table's keys
func (s *Spec) ValidateData(tables map[string]*table.Table) error {
	for _, ts := range s.Tables {
		t, ok := tables[ts.Name]
		if !ok {
			return fmt.Errorf("metadata: table %s declared but not provided", ts.Name)
		}
		for _, f := range ts.Fields {
			if t.ColumnIndex(f.Name) < 0 {
				return fmt.Errorf("metadata: table %s: declared column %q missing from data", ts.Name, f.Name)
			}
		}

		pkIx := t.ColumnIndex(ts.PrimaryKey)
		seen := make(map[string]struct{}, len(t.Rows))
		for i, row := range t.Rows {
			v := row[pkIx]
			if v == nil {
				return fmt.Errorf("metadata: table %s: null primary key at row %d", ts.Name, i)
			}
			k := keyString(v)
			if _, dup := seen[k]; dup {
				return fmt.Errorf("metadata: table %s: duplicate primary key %v", ts.Name, v)
			}
			seen[k] = struct{}{}
		}
	}

	for _, ts := range s.Tables {
		t := tables[ts.Name]
		for _, fk := range s.ForeignKeys(ts.Name) {
			parent := tables[fk.Table]
			pix := parent.ColumnIndex(fk.Field)
			if pix < 0 {
				return fmt.Errorf("metadata: table %s: referenced column %s.%s missing from data", ts.Name, fk.Table, fk.Field)
			}
			known := make(map[string]struct{}, len(parent.Rows))
			for _, prow := range parent.Rows {
				known[keyString(prow[pix])] = struct{}{}
			}

			cix := t.ColumnIndex(fk.Column)
			for i, row := range t.Rows {
				v := row[cix]
				if v == nil {
					return fmt.Errorf("metadata: table %s: null foreign key %s at row %d", ts.Name, fk.Column, i)
				}
				if _, ok := known[keyString(v)]; !ok {
					return fmt.Errorf("metadata: table %s: foreign key %s=%v has no matching row in %s", ts.Name, fk.Column, v, fk.Table)
				}
			}
		}
	}
	return nil
}

// keyString produces a canonical string form for key values so that int64
// and float64 representations of the same integral key compare equal.
func keyString(v any) string {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// KeyString is the canonical key form shared with the sampler, which must
// group child rows by the same notion of key equality used here.
func KeyString(v any) string { return keyString(v) }
