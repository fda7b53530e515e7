package types

import (
	"sort"
	"time"
)

// Point is a single timestamped measurement.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Series is a time-indexed numeric series such as meter consumption (Wh per
// interval) or outdoor temperature (°F). Order is not significant until the
// series is aligned with another one.
type Series []Point

// Sorted returns a copy of the series ordered by timestamp. When a timestamp
// appears more than once the later entry wins.
func (s Series) Sorted() Series {
	idx := make(map[int64]int, len(s))
	out := make(Series, 0, len(s))
	for _, p := range s {
		key := p.TS.UnixNano()
		if i, ok := idx[key]; ok {
			out[i] = p
			continue
		}
		idx[key] = len(out)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TS.Before(out[j].TS)
	})
	return out
}

// Values returns just the measurements in series order.
func (s Series) Values() []float64 {
	vals := make([]float64, len(s))
	for i, p := range s {
		vals[i] = p.Value
	}
	return vals
}

// Index returns the measurements keyed by timestamp (UnixNano). Later
// duplicates overwrite earlier ones.
func (s Series) Index() map[int64]float64 {
	m := make(map[int64]float64, len(s))
	for _, p := range s {
		m[p.TS.UnixNano()] = p.Value
	}
	return m
}

// Sample is one aligned interval: the consumption and temperature observed at
// the same timestamp.
type Sample struct {
	TS    time.Time `json:"ts"`
	Usage float64   `json:"usage"`
	Temp  float64   `json:"temp"`
}
