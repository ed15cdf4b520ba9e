// Command flatten converts nested records to flat key/value records and
// back.
//
// Flatten mode (default) reads JSON records (array, envelope, or NDJSON),
// joins nested paths with the configured separator, and writes one flat JSON
// object per line. With -sink, rows are written to a tabular destination
// (csv, sqlite, postgres, mssql) instead; the table layout is derived from a
// discovered schema produced by cmd/discover.
//
// Deflatten mode (-deflatten) reads flat records (NDJSON) and rebuilds the
// nested structure. With -schema, leaf values are coerced to the discovered
// field types; coercion failures are reported on stderr and leave the
// original value in place.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"wmsprobe/internal/config"
	"wmsprobe/internal/flatten"
	"wmsprobe/internal/metrics"
	"wmsprobe/internal/metrics/datadog"
	"wmsprobe/internal/rowhash"
	"wmsprobe/internal/schema"
	"wmsprobe/internal/sink"
	jsonsource "wmsprobe/internal/source/json"

	_ "wmsprobe/internal/sink/csv"
	_ "wmsprobe/internal/sink/mssql"
	_ "wmsprobe/internal/sink/postgres"
	_ "wmsprobe/internal/sink/sqlite"
)

func main() {
	var (
		// flagInput is the dataset to process: a local file path, or "-" for stdin.
		flagInput = flag.String("input", "-", "Input file path, or - for stdin")

		// flagDeflatten switches to deflatten mode: flat records in, nested out.
		flagDeflatten = flag.Bool("deflatten", false, "Rebuild nested records from flat input")

		// flagSchema points at an entity schema JSON file (cmd/discover output).
		// In deflatten mode it enables type coercion; with -sink it defines the
		// destination table layout.
		flagSchema = flag.String("schema", "", "Entity schema file (cmd/discover output)")

		// Structural knobs. Defaults mirror config.Default(); they must match
		// the values used when the input was flattened.
		flagDepth     = flag.Int("depth", config.Default().MaxDepth, "Maximum traversal depth before values become opaque")
		flagSeparator = flag.String("separator", config.Default().Separator, "Path separator for flattened keys")
		flagPreserve  = flag.Bool("preserve-lists", config.Default().PreserveLists, "Keep arrays intact instead of expanding indices")

		// flagRecords bounds how many records are read. <= 0 means all.
		flagRecords = flag.Int("records", 0, "Maximum number of records to process (0 = all)")

		// Sink selection (flatten mode only). Empty means NDJSON on stdout.
		flagSink  = flag.String("sink", "", "Destination backend: csv|sqlite|postgres|mssql (empty = NDJSON stdout)")
		flagDSN   = flag.String("dsn", "", "Destination DSN (file path for csv/sqlite)")
		flagTable = flag.String("table", "", "Destination table name; defaults to the schema entity name")

		// flagRowHash adds a deterministic SHA-256 fingerprint column over the
		// schema columns. When no primary key was inferred, the fingerprint
		// becomes the dedupe key, so re-running a load stays idempotent.
		flagRowHash = flag.Bool("row-hash", false, "Add a row_hash fingerprint column to sink output")

		// Datadog metrics knobs.
		flagDatadog     = flag.Bool("datadog", false, "Submit run metrics to Datadog")
		flagMetricsTags = flag.String("metrics-tags", "", "Extra Datadog tags, comma-separated")
		flagFlushEvery  = flag.Duration("metrics-flush", time.Minute, "Datadog flush interval")
	)
	flag.Parse()

	cfg := config.Default()
	cfg.Separator = *flagSeparator
	cfg.MaxDepth = *flagDepth
	cfg.PreserveLists = *flagPreserve
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *flagDatadog {
		backend, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    "flatten",
			Tags:       datadog.ParseTagsCSV(*flagMetricsTags),
			FlushEvery: *flagFlushEvery,
		})
		if err != nil {
			log.Fatalf("datadog: %v", err)
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = backend.Close()
		}()
	}

	var ent *schema.Entity
	if *flagSchema != "" {
		loaded, err := loadSchema(*flagSchema)
		if err != nil {
			log.Fatalf("schema: %v", err)
		}
		ent = loaded
	}

	in, closeIn, err := openInput(*flagInput)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer closeIn()

	if *flagDeflatten {
		if err := runDeflatten(in, cfg, ent); err != nil {
			log.Fatalf("deflatten: %v", err)
		}
		return
	}

	if err := runFlatten(ctx, in, cfg, ent, sinkTarget{
		kind:    *flagSink,
		dsn:     *flagDSN,
		table:   *flagTable,
		rowHash: *flagRowHash,
	}, *flagRecords); err != nil {
		log.Fatalf("flatten: %v", err)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func loadSchema(path string) (*schema.Entity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ent schema.Entity
	if err := json.Unmarshal(b, &ent); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(ent.Fields) == 0 {
		return nil, fmt.Errorf("%s: schema has no fields", path)
	}
	return &ent, nil
}

type sinkTarget struct {
	kind    string
	dsn     string
	table   string
	rowHash bool
}

func runFlatten(ctx context.Context, in io.Reader, cfg config.Core, ent *schema.Entity, target sinkTarget, max int) error {
	recs, err := jsonsource.ReadRecords(ctx, in, max)
	if err != nil {
		return err
	}
	metrics.RecordRecords("sampled", len(recs))

	start := time.Now()
	flats := make([]flatten.FlatRecord, 0, len(recs))
	for i, rec := range recs {
		flat, err := flatten.Flatten(rec, cfg)
		if err != nil {
			metrics.RecordStep("flatten", "error", time.Since(start).Seconds())
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		flats = append(flats, flat)
	}
	metrics.RecordStep("flatten", "ok", time.Since(start).Seconds())
	metrics.RecordRecords("flattened", len(flats))

	if target.kind == "" {
		return writeNDJSON(os.Stdout, flats)
	}
	return writeToSink(ctx, cfg, ent, target, flats)
}

func writeNDJSON[T any](w io.Writer, recs []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeToSink(ctx context.Context, cfg config.Core, ent *schema.Entity, target sinkTarget, flats []flatten.FlatRecord) error {
	if ent == nil {
		return fmt.Errorf("-sink requires -schema to derive the table layout")
	}
	table := target.table
	if table == "" {
		table = ent.Name
	}

	spec := sink.SpecFromEntity(table, ent, cfg)
	if len(spec.Columns) == 0 {
		return fmt.Errorf("schema for %s yields no sink columns", ent.Name)
	}

	if target.rowHash {
		h := rowhash.Hasher{
			Fields:            sourceKeys(spec),
			IncludeFieldNames: true,
			TrimSpace:         true,
		}
		h.Apply(flats, "row_hash", true)
		spec.Columns = append(spec.Columns, sink.ColumnSpec{
			Name:      "row_hash",
			Type:      sink.ColText,
			SourceKey: "row_hash",
		})
		if spec.PrimaryKey == "" {
			spec.PrimaryKey = "row_hash"
		}
	}

	w, err := sink.New(ctx, sink.Config{Kind: target.kind, DSN: target.dsn})
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Close()
	}()

	start := time.Now()
	if err := w.EnsureTable(ctx, spec); err != nil {
		metrics.RecordStep("sink", "error", time.Since(start).Seconds())
		return err
	}
	n, err := w.WriteRows(ctx, spec, flats)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep("sink", status, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	log.Printf("wrote %d rows to %s table %s", n, target.kind, spec.Name)
	return nil
}

func sourceKeys(spec sink.TableSpec) []string {
	out := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		out = append(out, c.SourceKey)
	}
	return out
}

// runDeflatten streams flat NDJSON records and prints rebuilt nested records
// as NDJSON. Coercion diagnostics go to stderr so stdout stays pipeable.
func runDeflatten(in io.Reader, cfg config.Core, ent *schema.Entity) error {
	bw := bufio.NewWriter(os.Stdout)
	defer bw.Flush()
	enc := json.NewEncoder(bw)

	dec := json.NewDecoder(bufio.NewReader(in))
	dec.UseNumber()

	var restored, failures int
	start := time.Now()
	for line := 1; ; line++ {
		var flat flatten.FlatRecord
		if err := dec.Decode(&flat); err == io.EOF {
			break
		} else if err != nil {
			metrics.RecordStep("deflatten", "error", time.Since(start).Seconds())
			return fmt.Errorf("record %d: %w", line, err)
		}

		nested, diags, err := flatten.Deflatten(flat, cfg, ent)
		if err != nil {
			metrics.RecordStep("deflatten", "error", time.Since(start).Seconds())
			return fmt.Errorf("record %d: %w", line, err)
		}
		for _, d := range diags {
			failures++
			metrics.RecordCoercionErrors(d.Target, 1)
			fmt.Fprintf(os.Stderr, "record %d: %v\n", line, d)
		}
		if err := enc.Encode(nested); err != nil {
			return err
		}
		restored++
	}
	metrics.RecordStep("deflatten", "ok", time.Since(start).Seconds())
	metrics.RecordRecords("restored", restored)

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d value(s) kept their original representation\n", failures)
	}
	return nil
}
