package storage

import (
	"context"
	"fmt"

	"synthdb/internal/graph"
	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

// Write creates the schema for spec and inserts every sampled table in
// foreign-key order, parents before children, so references resolve as rows
// land. Returns the total number of rows written.
//
// Edge cases:
//   - Tables in spec but absent from tables are still created, just not filled.
//   - An empty tables map creates the schema and writes nothing.
func Write(ctx context.Context, repo Repository, spec *metadata.Spec, tables map[string]*table.Table) (int64, error) {
	g, err := graph.Build(spec)
	if err != nil {
		return 0, err
	}

	order := g.TopologicalOrder()

	specs := make([]metadata.TableSpec, 0, len(order))
	for _, name := range order {
		ts, ok := spec.Table(name)
		if !ok {
			return 0, fmt.Errorf("storage: no metadata for table %s", name)
		}
		specs = append(specs, ts)
	}
	if err := repo.EnsureTables(ctx, specs); err != nil {
		return 0, err
	}

	var total int64
	for _, name := range order {
		t, ok := tables[name]
		if !ok || t.NumRows() == 0 {
			continue
		}
		n, err := repo.InsertRows(ctx, name, t.Columns, t.Rows)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", name, err)
		}
		total += n
	}
	return total, nil
}
