// Package infer proposes dataset metadata from raw tables: per-column
// types, primary keys, and foreign-key references. It exists to bootstrap
// a metadata file from CSV exports without writing JSON by hand.
//
// Design constraints:
//   - Inference is best-effort and must never fail on odd data; anything
//     unrecognized degrades to categorical.
//   - Distinct tracking is bounded per column so wide ID columns cannot
//     blow up memory.
//   - The proposal is a starting point meant to be reviewed and refined
//     manually, not an authoritative schema.
package infer

import (
	"fmt"
	"sort"
	"strings"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

const distinctCap = 10000

// Options tune the proposal heuristics. The zero value is usable.
type Options struct {
	// MaxDistinct caps distinct-value tracking per column. Zero means the
	// package default.
	MaxDistinct int
}

// Propose builds a metadata spec from raw tables.
//
// Heuristics:
//   - A column named "id", or "<table>_id" on its own table, that is fully
//     distinct and non-null becomes the primary key. Failing that, the
//     first fully distinct non-null column wins.
//   - A column named "<other>_id" whose values are a subset of another
//     table's primary key becomes a foreign key to it.
//   - Remaining columns: all-integer cells map to numerical/integer,
//     numeric to numerical/float, all-bool to boolean, anything else to
//     categorical.
//
// The returned spec is validated through metadata.Parse semantics by the
// caller writing and reloading it; Propose itself never fails on data
// shape, only on empty input.
func Propose(tables map[string]*table.Table, opt Options) (*metadata.Spec, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("infer: no tables")
	}
	limit := opt.MaxDistinct
	if limit <= 0 {
		limit = distinctCap
	}

	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)

	profiles := make(map[string]*tableProfile, len(tables))
	for _, n := range names {
		profiles[n] = profileTable(tables[n], limit)
	}

	spec := &metadata.Spec{}
	for _, n := range names {
		spec.Tables = append(spec.Tables, buildTableSpec(n, profiles[n], names, profiles))
	}
	return spec, nil
}

// columnProfile is the bounded scan result for one column.
type columnProfile struct {
	name     string
	total    int // rows with a non-null value
	distinct int
	capped   bool
	allInt   bool
	allNum   bool
	allBool  bool
	allStr   bool
	values   map[string]struct{} // nil once capped
}

type tableProfile struct {
	rows    int
	columns []*columnProfile
	byName  map[string]*columnProfile
}

func profileTable(t *table.Table, limit int) *tableProfile {
	p := &tableProfile{rows: t.NumRows(), byName: make(map[string]*columnProfile)}
	for _, name := range t.Columns {
		cp := &columnProfile{
			name: name, allInt: true, allNum: true, allBool: true, allStr: true,
			values: make(map[string]struct{}),
		}
		p.columns = append(p.columns, cp)
		p.byName[name] = cp
	}

	for _, row := range t.Rows {
		for i, cp := range p.columns {
			if i >= len(row) || row[i] == nil {
				continue
			}
			cp.total++
			switch row[i].(type) {
			case int64:
				cp.allBool = false
				cp.allStr = false
			case float64:
				cp.allInt = false
				cp.allBool = false
				cp.allStr = false
			case bool:
				cp.allInt = false
				cp.allNum = false
				cp.allStr = false
			case string:
				cp.allInt = false
				cp.allNum = false
				cp.allBool = false
			default:
				cp.allInt = false
				cp.allNum = false
				cp.allBool = false
				cp.allStr = false
			}
			if cp.capped {
				continue
			}
			cp.values[metadata.KeyString(row[i])] = struct{}{}
			if len(cp.values) >= limit {
				cp.distinct = len(cp.values)
				cp.capped = true
				cp.values = nil
			}
		}
	}
	for _, cp := range p.columns {
		if !cp.capped {
			cp.distinct = len(cp.values)
		}
	}
	return p
}

func buildTableSpec(name string, p *tableProfile, allNames []string, profiles map[string]*tableProfile) metadata.TableSpec {
	pk := pickPrimaryKey(name, p)

	ts := metadata.TableSpec{Name: name, PrimaryKey: pk}
	for _, cp := range p.columns {
		f := metadata.FieldSpec{Name: cp.name}
		switch {
		case cp.name == pk:
			f.Type = metadata.TypeID
			f.Subtype = keySubtype(cp)
		default:
			if ref := findReference(name, cp, allNames, profiles); ref != nil {
				f.Type = metadata.TypeID
				f.Subtype = keySubtype(cp)
				f.Ref = ref
			} else {
				f.Type, f.Subtype = valueType(cp)
			}
		}
		ts.Fields = append(ts.Fields, f)
	}
	return ts
}

// pickPrimaryKey prefers conventional id names, then falls back to the
// first fully distinct non-null column. An empty result means no usable
// key was found and the caller will have to add one manually.
func pickPrimaryKey(tableName string, p *tableProfile) string {
	isKey := func(cp *columnProfile) bool {
		return cp != nil && cp.total == p.rows && p.rows > 0 && !cp.capped && cp.distinct == p.rows
	}
	if cp := p.byName["id"]; isKey(cp) {
		return "id"
	}
	for _, cand := range []string{tableName + "_id", singular(tableName) + "_id"} {
		if cp := p.byName[cand]; isKey(cp) {
			return cand
		}
	}
	for _, cp := range p.columns {
		if isKey(cp) {
			return cp.name
		}
	}
	return ""
}

// findReference matches "<other>_id" naming against the other tables and
// requires the observed values to be a subset of the target primary key.
func findReference(tableName string, cp *columnProfile, allNames []string, profiles map[string]*tableProfile) *metadata.Reference {
	if !strings.HasSuffix(cp.name, "_id") || cp.total == 0 || cp.capped {
		return nil
	}
	base := strings.TrimSuffix(cp.name, "_id")
	for _, other := range allNames {
		if other == tableName {
			continue
		}
		if other != base && singular(other) != base {
			continue
		}
		op := profiles[other]
		pk := pickPrimaryKey(other, op)
		if pk == "" {
			continue
		}
		target := op.byName[pk]
		if target == nil || target.capped {
			continue
		}
		subset := true
		for v := range cp.values {
			if _, ok := target.values[v]; !ok {
				subset = false
				break
			}
		}
		if subset {
			return &metadata.Reference{Table: other, Field: pk}
		}
	}
	return nil
}

func valueType(cp *columnProfile) (string, string) {
	switch {
	case cp.total == 0:
		return metadata.TypeCategorical, ""
	case cp.allBool:
		return metadata.TypeBoolean, ""
	case cp.allInt:
		return metadata.TypeNumerical, metadata.SubtypeInteger
	case cp.allNum:
		return metadata.TypeNumerical, metadata.SubtypeFloat
	default:
		return metadata.TypeCategorical, ""
	}
}

func keySubtype(cp *columnProfile) string {
	if cp.allStr {
		return metadata.SubtypeString
	}
	return metadata.SubtypeInteger
}

// singular strips a naive plural suffix so "users" can own "user_id".
func singular(s string) string {
	if strings.HasSuffix(s, "ies") {
		return strings.TrimSuffix(s, "ies") + "y"
	}
	if strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		return strings.TrimSuffix(s, "s")
	}
	return s
}

// Report renders a human-readable summary of a proposal for review.
func Report(spec *metadata.Spec, tables map[string]*table.Table) string {
	var b strings.Builder
	for _, ts := range spec.Tables {
		rows := 0
		if t := tables[ts.Name]; t != nil {
			rows = t.NumRows()
		}
		fmt.Fprintf(&b, "table %s\trows=%d\tprimary_key=%s\n", ts.Name, rows, ts.PrimaryKey)
		for _, f := range ts.Fields {
			line := fmt.Sprintf("  %-20s\t%s", f.Name, f.Type)
			if f.Subtype != "" {
				line += "/" + f.Subtype
			}
			if f.Ref != nil {
				line += fmt.Sprintf("\t-> %s.%s", f.Ref.Table, f.Ref.Field)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
