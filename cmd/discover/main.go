// Command discover samples a dataset and emits the inferred entity schema.
//
// It reads a bounded number of records from a JSON source (array, envelope,
// or NDJSON) or from an HTML page with a mapping file, analyzes per-field
// type frequencies, and prints a schema with per-field confidence scores and
// inferred primary/replication keys.
//
// Output modes
//
//   - Default mode: prints the entity schema as JSON to stdout.
//   - Report mode (-report): prints a human-readable confidence report and
//     suppresses JSON output. Useful for eyeballing a feed before wiring it
//     into a destination.
//
// Metrics
//
// When -datadog is set, run metrics (step durations, record counts) are
// buffered and submitted to Datadog; credentials come from the standard
// DD_API_KEY environment variable used by the Datadog client.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"wmsprobe/internal/config"
	"wmsprobe/internal/discover"
	"wmsprobe/internal/metrics"
	"wmsprobe/internal/metrics/datadog"
	"wmsprobe/internal/schema"
	htmlsource "wmsprobe/internal/source/html"
	jsonsource "wmsprobe/internal/source/json"
)

func main() {
	var (
		// flagInput is the dataset to sample: a local file path, or "-" for stdin.
		flagInput = flag.String("input", "-", "Input file path, or - for stdin")

		// flagEntity is the logical name recorded in the emitted schema.
		flagEntity = flag.String("entity", "dataset", "Entity name recorded in the schema")

		// flagFormat selects the source decoder. "json" handles arrays,
		// envelopes and NDJSON; "html" requires -mapping.
		flagFormat = flag.String("format", "json", "Input format: json|html")

		// flagMapping points at a JSON mapping file for HTML input. The file
		// holds a record selector plus per-field extraction rules.
		flagMapping = flag.String("mapping", "", "Mapping file for -format html")

		// Sampling and analysis knobs. Defaults mirror config.Default().
		flagRecords   = flag.Int("records", config.Default().SampleSize, "Maximum number of records to sample")
		flagDepth     = flag.Int("depth", config.Default().MaxDepth, "Maximum traversal depth before values become opaque")
		flagSeparator = flag.String("separator", config.Default().Separator, "Path separator for flattened keys")
		flagPreserve  = flag.Bool("preserve-lists", config.Default().PreserveLists, "Keep arrays intact instead of expanding indices")
		flagThreshold = flag.Float64("threshold", config.Default().ConfidenceThreshold, "Confidence threshold below which fields are flagged")

		// flagShards splits the sample across parallel analyzers and merges
		// the partial statistics. 1 disables sharding.
		flagShards = flag.Int("shards", 1, "Number of parallel analysis shards")

		// flagReport prints a human-readable confidence report instead of JSON.
		flagReport = flag.Bool("report", false, "Print a confidence report (suppresses JSON output)")

		// flagPretty controls JSON indentation. Ignored in report mode.
		flagPretty = flag.Bool("pretty", true, "Pretty-print JSON output")

		// Datadog metrics knobs.
		flagDatadog     = flag.Bool("datadog", false, "Submit run metrics to Datadog")
		flagMetricsTags = flag.String("metrics-tags", "", "Extra Datadog tags, comma-separated (env:prod,service:probe)")
		flagFlushEvery  = flag.Duration("metrics-flush", time.Minute, "Datadog flush interval")
	)
	flag.Parse()

	cfg := config.Core{
		Separator:           *flagSeparator,
		MaxDepth:            *flagDepth,
		PreserveLists:       *flagPreserve,
		ConfidenceThreshold: *flagThreshold,
		SampleSize:          *flagRecords,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if *flagDatadog {
		backend, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    "discover",
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

	recs, err := readRecords(ctx, *flagInput, *flagFormat, *flagMapping, cfg.SampleSize)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	metrics.RecordRecords("sampled", len(recs))

	start := time.Now()
	ent, err := discoverEntity(*flagEntity, recs, cfg, *flagShards)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep("discover", status, time.Since(start).Seconds())
	if err != nil {
		log.Fatalf("discover: %v", err)
	}

	if *flagReport {
		fmt.Fprint(os.Stdout, confidenceReport(ent))
		return
	}

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(ent); err != nil {
		log.Fatalf("encode schema: %v", err)
	}
}

func discoverEntity(name string, recs []map[string]any, cfg config.Core, shards int) (*schema.Entity, error) {
	if shards <= 1 || len(recs) < shards {
		return discover.Discover(name, recs, cfg)
	}

	batches := make([][]map[string]any, 0, shards)
	size := (len(recs) + shards - 1) / shards
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		batches = append(batches, recs[start:end])
	}
	return discover.DiscoverSharded(name, batches, cfg)
}

// readRecords loads up to max records from the given input.
func readRecords(ctx context.Context, input, format, mapping string, max int) ([]map[string]any, error) {
	var r io.Reader
	if input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	switch format {
	case "json":
		return jsonsource.ReadRecords(ctx, r, max)

	case "html":
		if mapping == "" {
			return nil, fmt.Errorf("-format html requires -mapping")
		}
		mf, err := loadMappingFile(mapping)
		if err != nil {
			return nil, err
		}
		page, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		recs, err := htmlsource.ExtractRecords(string(page), mf.RecordSelector, mf.Mappings)
		if err != nil {
			return nil, err
		}
		if len(recs) > max {
			recs = recs[:max]
		}
		return recs, nil

	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func loadMappingFile(path string) (*htmlsource.MappingFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf htmlsource.MappingFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	if mf.RecordSelector == "" || len(mf.Mappings) == 0 {
		return nil, fmt.Errorf("mapping file %s: record_selector and mappings are required", path)
	}
	return &mf, nil
}

// confidenceReport renders a plain-text summary of the schema: one line per
// field plus key inference results. Low-confidence fields are sorted first
// so the fields that need human review lead the output.
func confidenceReport(ent *schema.Entity) string {
	fields := append([]schema.Field(nil), ent.Fields...)
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].LowConfidence != fields[j].LowConfidence {
			return fields[i].LowConfidence
		}
		return fields[i].Confidence < fields[j].Confidence
	})

	var b strings.Builder
	fmt.Fprintf(&b, "entity: %s (overall confidence %.3f)\n", ent.Name, ent.OverallConfidence)
	if ent.PrimaryKey != "" {
		fmt.Fprintf(&b, "primary key: %s\n", ent.PrimaryKey)
	} else {
		b.WriteString("primary key: none inferred\n")
	}
	if ent.ReplicationKey != "" {
		fmt.Fprintf(&b, "replication key: %s\n", ent.ReplicationKey)
	} else {
		b.WriteString("replication key: none inferred\n")
	}

	b.WriteString("\nfields:\n")
	for _, f := range fields {
		flags := make([]string, 0, 3)
		if f.LowConfidence {
			flags = append(flags, "LOW")
		}
		if f.Nullable {
			flags = append(flags, "nullable")
		}
		if f.Format != "" {
			flags = append(flags, f.Format)
		}
		suffix := ""
		if len(flags) > 0 {
			suffix = "  [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Fprintf(&b, "  %-40s %-8s %.3f%s\n", f.Path, f.Type, f.Confidence, suffix)
	}
	return b.String()
}
