// Package resample buckets sub-daily series into calendar days.
package resample

import (
	"sort"
	"time"

	"github.com/raterudder/balancepoint/pkg/types"
)

// Aggregation combines the values that fall in one bucket.
type Aggregation int

const (
	// Sum adds the values, for energy readings.
	Sum Aggregation = iota
	// Mean averages the values, for temperatures.
	Mean
)

func (a Aggregation) String() string {
	switch a {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	default:
		return "unknown"
	}
}

type bucket struct {
	sum   float64
	count int
}

// Daily groups the series by calendar day in loc and aggregates each day. The
// output is keyed at local midnight and sorted ascending. Days without any
// input are omitted rather than filled.
func Daily(s types.Series, loc *time.Location, agg Aggregation) types.Series {
	if loc == nil {
		loc = time.UTC
	}
	buckets := make(map[time.Time]*bucket)
	for _, p := range s {
		day := truncateDay(p.TS.In(loc))
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.sum += p.Value
		b.count++
	}

	out := make(types.Series, 0, len(buckets))
	for day, b := range buckets {
		v := b.sum
		if agg == Mean {
			v = b.sum / float64(b.count)
		}
		out = append(out, types.Point{TS: day, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TS.Before(out[j].TS)
	})
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
