package types

// ReadingDateFormat is the timestamp layout used in exported readings.
const ReadingDateFormat = "2006-01-02 15:04"

// Decomposition splits observed consumption into its weather-driven part.
// All three series share the same ascending index.
type Decomposition struct {
	// Total echoes the observed consumption.
	Total Series `json:"total"`
	// Air is the weather-driven estimate, never above Total.
	Air Series `json:"air"`
	// Diff is Total minus the unclamped model prediction and may be negative.
	Diff Series `json:"diff"`
}

// Len returns the number of aligned intervals.
func (d Decomposition) Len() int {
	return len(d.Total)
}

// Reading is the exported form of one decomposed interval, in kilo-units.
type Reading struct {
	Date       string  `json:"date"`
	Reading    float64 `json:"reading"`
	AirReading float64 `json:"air_reading"`
	DiffSeries float64 `json:"diff_series"`
}

// Readings converts the decomposition to exported records. Values are divided
// by 1000 (Wh to kWh) and dates formatted with ReadingDateFormat.
func (d Decomposition) Readings() []Reading {
	out := make([]Reading, len(d.Total))
	for i, p := range d.Total {
		out[i] = Reading{
			Date:       p.TS.Format(ReadingDateFormat),
			Reading:    p.Value / 1000,
			AirReading: d.Air[i].Value / 1000,
			DiffSeries: d.Diff[i].Value / 1000,
		}
	}
	return out
}
