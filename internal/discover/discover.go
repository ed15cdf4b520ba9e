package discover

import (
	"sync"

	"wmsprobe/internal/config"
	"wmsprobe/internal/schema"
)

// Discover runs one sequential discovery pass over recs and returns the
// resolved entity schema. Ingestion stops once cfg.SampleSize records have
// been analyzed.
func Discover(entityName string, recs []map[string]any, cfg config.Core) (*schema.Entity, error) {
	acc, err := NewAccumulator(cfg)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if !acc.Analyze(r) {
			break
		}
	}
	return BuildSchema(entityName, acc), nil
}

// DiscoverSharded fans discovery out over independent record batches, one
// accumulator per shard, then merges. The sample budget is allocated across
// batches in order, so the combined sample never exceeds cfg.SampleSize and
// the merged statistics equal one sequential pass over the concatenated
// batches.
func DiscoverSharded(entityName string, batches [][]map[string]any, cfg config.Core) (*schema.Entity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Hand out the record budget batch by batch; shards past the bound
	// get nothing, mirroring where a sequential pass would saturate.
	remaining := cfg.SampleSize
	shards := make([][]map[string]any, 0, len(batches))
	for _, batch := range batches {
		if remaining <= 0 {
			break
		}
		if len(batch) > remaining {
			batch = batch[:remaining]
		}
		remaining -= len(batch)
		shards = append(shards, batch)
	}

	accs := make([]*Accumulator, len(shards))
	var wg sync.WaitGroup
	for i, batch := range shards {
		acc, err := NewAccumulator(cfg)
		if err != nil {
			return nil, err
		}
		accs[i] = acc

		wg.Add(1)
		go func(acc *Accumulator, batch []map[string]any) {
			defer wg.Done()
			for _, r := range batch {
				if !acc.Analyze(r) {
					break
				}
			}
		}(acc, batch)
	}
	wg.Wait()

	merged, err := NewAccumulator(cfg)
	if err != nil {
		return nil, err
	}
	for _, acc := range accs {
		if err := merged.Merge(acc); err != nil {
			return nil, err
		}
	}
	return BuildSchema(entityName, merged), nil
}
