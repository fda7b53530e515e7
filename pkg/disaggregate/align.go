package disaggregate

import (
	"github.com/raterudder/balancepoint/pkg/types"
)

// Align inner-joins consumption with temperature by exact timestamp. The
// result is ascending with no duplicate timestamps; intervals present in only
// one series are dropped.
func Align(usage, temps types.Series) []types.Sample {
	tempIdx := temps.Index()
	sorted := usage.Sorted()
	samples := make([]types.Sample, 0, len(sorted))
	for _, p := range sorted {
		temp, ok := tempIdx[p.TS.UnixNano()]
		if !ok {
			continue
		}
		samples = append(samples, types.Sample{
			TS:    p.TS,
			Usage: p.Value,
			Temp:  temp,
		})
	}
	return samples
}
