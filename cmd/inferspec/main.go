// Command inferspec proposes dataset metadata by profiling CSV files.
//
// This command is intended for quickly bootstrapping a metadata file from
// real data without writing JSON by hand. It reads every CSV in a directory
// (one table per file), profiles the columns, and emits:
//
//   - A metadata JSON document usable with cmd/synthdb, or
//   - A human-readable report (-report) describing the proposed types,
//     primary keys, and foreign-key references.
//
// The proposal is a starting point, not an oracle: heuristics cap the number
// of distinct values tracked per column, and reference detection requires a
// "<parent>_id" naming convention plus containment of the observed values in
// the parent's key column. Review the output before fitting.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"synthdb/internal/infer"
	"synthdb/internal/table"
)

func main() {
	var (
		// flagData is the directory holding one <table>.csv per table.
		flagData = flag.String("data", "", "directory containing CSV files, one table per file")

		// flagOut is where the proposed metadata JSON is written.
		// When empty, JSON goes to stdout.
		flagOut = flag.String("out", "", "output path for metadata JSON (default: stdout)")

		// flagReport switches to the human-readable report and suppresses
		// JSON output. Convenient for interactive review.
		flagReport = flag.Bool("report", false, "print a profiling report instead of JSON")

		// flagMaxDistinct bounds per-column distinct tracking. Larger values
		// improve key detection on big tables at the cost of memory.
		flagMaxDistinct = flag.Int("max-distinct", 0, "distinct values tracked per column (0 = default)")

		// flagEncoding selects the input charset for all files.
		flagEncoding = flag.String("csv-encoding", "", "input CSV charset (utf-8, latin1, windows-1252)")

		flagPretty = flag.Bool("pretty", true, "pretty-print JSON output")
	)
	flag.Parse()

	if *flagData == "" {
		fmt.Fprintln(os.Stderr, "usage: inferspec -data dir [-out meta.json] [-report]")
		os.Exit(2)
	}

	tables, err := readDir(*flagData, *flagEncoding)
	if err != nil {
		fatalf("%v", err)
	}
	if len(tables) == 0 {
		fatalf("no CSV files found in %s", *flagData)
	}

	spec, err := infer.Propose(tables, infer.Options{MaxDistinct: *flagMaxDistinct})
	if err != nil {
		fatalf("infer: %v", err)
	}

	if *flagReport {
		fmt.Print(infer.Report(spec, tables))
		return
	}

	var raw []byte
	if *flagPretty {
		raw, err = json.MarshalIndent(spec, "", "  ")
	} else {
		raw, err = json.Marshal(spec)
	}
	if err != nil {
		fatalf("encode metadata: %v", err)
	}
	raw = append(raw, '\n')

	if *flagOut == "" {
		_, _ = os.Stdout.Write(raw)
		return
	}
	if err := os.WriteFile(*flagOut, raw, 0o644); err != nil {
		fatalf("write %s: %v", *flagOut, err)
	}
}

// readDir loads every *.csv in dir as a table named after the file.
func readDir(dir, encoding string) (map[string]*table.Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := map[string]*table.Table{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".csv")
		path := filepath.Join(dir, e.Name())
		t, err := table.ReadCSVFile(path, name, table.CSVOptions{Encoding: encoding})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out[name] = t
	}
	return out, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
