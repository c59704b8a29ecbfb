// Package aggregate filters canonical records by date range and counts them
// per group key.
package aggregate

import (
	"iter"
	"slices"

	"github.com/tinytelemetry/logtally/internal/model"
)

// Filter yields only the records whose timestamp falls inside rng.
// A nil range passes everything through.
func Filter(records iter.Seq[model.Record], rng *model.DateRange) iter.Seq[model.Record] {
	if rng == nil {
		return records
	}
	return func(yield func(model.Record) bool) {
		for r := range records {
			if !rng.Contains(r.Timestamp) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// GroupCount counts records per key. Records without the key field are skipped.
func GroupCount(records iter.Seq[model.Record], groupBy model.GroupBy) model.Aggregate {
	out := make(model.Aggregate)
	for r := range records {
		key := groupBy.Key(r)
		if key == "" {
			continue
		}
		out[key]++
	}
	return out
}

// DistinctCount counts distinct user IDs per key. Records missing either the
// key field or the user ID are skipped.
func DistinctCount(records iter.Seq[model.Record], groupBy model.GroupBy) model.Aggregate {
	sets := make(map[string]map[string]struct{})
	for r := range records {
		key := groupBy.Key(r)
		if key == "" || r.UserID == "" {
			continue
		}
		set, ok := sets[key]
		if !ok {
			set = make(map[string]struct{})
			sets[key] = set
		}
		set[r.UserID] = struct{}{}
	}

	out := make(model.Aggregate, len(sets))
	for key, set := range sets {
		out[key] = len(set)
	}
	return out
}

// Run applies the date range of p and then the counting mode it selects.
func Run(records iter.Seq[model.Record], p model.Params) model.Aggregate {
	filtered := Filter(records, p.Range)
	if p.Count.Distinct() {
		return DistinctCount(filtered, p.GroupBy)
	}
	return GroupCount(filtered, p.GroupBy)
}

// Total sums every count in agg.
func Total(agg model.Aggregate) int {
	total := 0
	for _, n := range agg {
		total += n
	}
	return total
}

// Keys returns the keys of agg in ascending order.
func Keys(agg model.Aggregate) []string {
	keys := make([]string, 0, len(agg))
	for k := range agg {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
