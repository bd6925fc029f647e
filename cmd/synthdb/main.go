package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"synthdb/internal/metadata"
	"synthdb/internal/metrics"
	"synthdb/internal/metrics/datadog"
	"synthdb/internal/sampler"
	"synthdb/internal/storage"
	"synthdb/internal/synth"
	"synthdb/internal/table"

	// register all backends with the storage factory.
	// the -storage flag specifies which to use but we build in support for all of them.
	_ "synthdb/internal/storage/mssql"
	_ "synthdb/internal/storage/postgres"
	_ "synthdb/internal/storage/sqlite"
)

// main is the entry point for the synthdb binary. It loads dataset metadata
// and real tables, fits the generative models, samples a synthetic dataset,
// and writes it out as CSV and/or into a relational database.
func main() {
	var (
		metaPath          string
		dataDir           string
		outDir            string
		rows              int
		tableName         string
		children          bool
		storageKind       string
		dsn               string
		seed              uint64
		retry             int
		encoding          string
		metricsBackendFlg string
	)

	flag.StringVar(&metaPath, "metadata", "", "dataset metadata JSON path")
	flag.StringVar(&dataDir, "data", "", "directory containing one <table>.csv per table")
	flag.StringVar(&outDir, "out", "", "directory to write sampled CSV files (optional)")
	flag.IntVar(&rows, "rows", 0, "rows to sample per root table (0 = same as fitted data)")
	flag.StringVar(&tableName, "table", "", "sample a single table instead of the whole dataset")
	flag.BoolVar(&children, "children", true, "when sampling a single table, also sample its descendants")
	flag.StringVar(&storageKind, "storage", "", "storage backend to write into (postgres, sqlite, sqlserver)")
	flag.StringVar(&dsn, "dsn", "", "storage DSN")
	flag.Uint64Var(&seed, "seed", 0, "random seed (0 = time-based)")
	flag.IntVar(&retry, "retry", 0, "constraint retry budget per row (0 = default)")
	flag.StringVar(&encoding, "csv-encoding", "", "input CSV charset (utf-8, latin1, windows-1252)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if metaPath == "" || dataDir == "" {
		fmt.Fprintln(os.Stderr, "usage: synthdb -metadata meta.json -data dir [-out dir] [-rows n]")
		os.Exit(2)
	}
	if outDir == "" && storageKind == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: set -out and/or -storage")
		os.Exit(2)
	}

	logger := newLogger(*verbose)

	spec, err := metadata.Load(metaPath)
	if err != nil {
		fatalf("load metadata: %v", err)
	}

	tables, err := readTables(spec, dataDir, encoding)
	if err != nil {
		fatalf("%v", err)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	var backend metrics.Backend = metrics.Nop()
	switch backendName {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			logger.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			backend = b
			// Close() stops the periodic flush loop and performs a final Flush().
			defer func() {
				if err := b.Close(); err != nil {
					logger.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	case "", "none":
		if *verbose {
			logger.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	s := synth.New(synth.Options{
		Logger:      logger,
		Metrics:     backend,
		Seed:        seed,
		RetryBudget: retry,
	})

	ctx := context.Background()
	start := time.Now()

	if err := s.Fit(ctx, spec, tables); err != nil {
		fatalf("fit: %v", err)
	}
	if *verbose {
		logger.Printf("fitted %d tables in %s", len(spec.Tables), time.Since(start).Truncate(time.Millisecond))
	}

	res, err := sample(s, tableName, rows, children)
	if err != nil {
		fatalf("sample: %v", err)
	}
	for _, w := range res.Warnings {
		logger.Printf("warning: table=%s %s", w.Table, w.Message)
	}

	if outDir != "" {
		if err := writeCSVs(outDir, res.Tables); err != nil {
			fatalf("%v", err)
		}
	}

	if storageKind != "" {
		repo, err := storage.New(ctx, storage.Config{Kind: storageKind, DSN: os.ExpandEnv(dsn)})
		if err != nil {
			fatalf("storage: %v", err)
		}
		defer repo.Close()

		n, err := storage.Write(ctx, repo, spec, res.Tables)
		if err != nil {
			fatalf("storage write: %v", err)
		}
		logger.Printf("wrote %d rows to %s", n, storageKind)
	}

	if *verbose {
		logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func newLogger(verbose bool) *log.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		fatalf("logger: %v", err)
	}
	return zap.NewStdLog(zl.Named("synthdb"))
}

func readTables(spec *metadata.Spec, dir, encoding string) (map[string]*table.Table, error) {
	out := make(map[string]*table.Table, len(spec.Tables))
	for _, name := range spec.TableNames() {
		path := filepath.Join(dir, name+".csv")
		t, err := table.ReadCSVFile(path, name, table.CSVOptions{Encoding: encoding})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out[name] = t
	}
	return out, nil
}

func sample(s *synth.Synthesizer, tableName string, rows int, children bool) (*sampler.Result, error) {
	if tableName != "" {
		return s.Sample(tableName, rows, synth.SampleOptions{Children: children})
	}
	return s.SampleAll(rows)
}

func writeCSVs(dir string, tables map[string]*table.Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, t := range tables {
		path := filepath.Join(dir, name+".csv")
		if err := table.WriteCSVFile(path, t); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
