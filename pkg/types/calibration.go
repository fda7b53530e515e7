package types

import (
	"encoding/json"
	"math"
)

// LinearModel is a fitted straight line of consumption against temperature.
type LinearModel struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At returns the modeled consumption at the given temperature.
func (m LinearModel) At(temp float64) float64 {
	return temp*m.Slope + m.Intercept
}

// SideFit is the winning regression for one side (heating or cooling) of a
// balance point sweep. Model is nil when no candidate produced a usable fit.
type SideFit struct {
	Model        *LinearModel
	BalancePoint float64
	AdjustedR2   float64
	// Samples is the number of aligned intervals the winning fit used.
	Samples int
}

// NoFit returns the SideFit reported when a sweep found nothing.
func NoFit() SideFit {
	return SideFit{AdjustedR2: math.Inf(-1)}
}

// Found returns true if the sweep produced a model.
func (f SideFit) Found() bool {
	return f.Model != nil
}

// Calibration holds the heating and cooling balance point fits.
type Calibration struct {
	Heating SideFit
	Cooling SideFit
}

// calibrationJSON is the flat 8-field wire form of a Calibration.
type calibrationJSON struct {
	SlopeHDD     *float64 `json:"slope_hdd"`
	InterceptHDD *float64 `json:"intercept_hdd"`
	BestHDDTemp  float64  `json:"best_hdd_temp"`
	BestR2AdjHDD *float64 `json:"best_r2_adj_hdd"`
	SlopeCDD     *float64 `json:"slope_cdd"`
	InterceptCDD *float64 `json:"intercept_cdd"`
	BestCDDTemp  float64  `json:"best_cdd_temp"`
	BestR2AdjCDD *float64 `json:"best_r2_adj_cdd"`
}

func splitSide(f SideFit) (slope, intercept, r2 *float64) {
	if f.Model != nil {
		s, i := f.Model.Slope, f.Model.Intercept
		slope, intercept = &s, &i
	}
	// JSON has no infinity so a missing fit is encoded as null
	if !math.IsInf(f.AdjustedR2, 0) && !math.IsNaN(f.AdjustedR2) {
		v := f.AdjustedR2
		r2 = &v
	}
	return slope, intercept, r2
}

func joinSide(slope, intercept, r2 *float64, temp float64) SideFit {
	f := NoFit()
	f.BalancePoint = temp
	if slope != nil && intercept != nil {
		f.Model = &LinearModel{Slope: *slope, Intercept: *intercept}
	}
	if r2 != nil {
		f.AdjustedR2 = *r2
	}
	return f
}

// MarshalJSON encodes the calibration as the flat slope_hdd/intercept_hdd/...
// record.
func (c Calibration) MarshalJSON() ([]byte, error) {
	var out calibrationJSON
	out.SlopeHDD, out.InterceptHDD, out.BestR2AdjHDD = splitSide(c.Heating)
	out.BestHDDTemp = c.Heating.BalancePoint
	out.SlopeCDD, out.InterceptCDD, out.BestR2AdjCDD = splitSide(c.Cooling)
	out.BestCDDTemp = c.Cooling.BalancePoint
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flat record produced by MarshalJSON. A null
// adjusted R² decodes to negative infinity.
func (c *Calibration) UnmarshalJSON(b []byte) error {
	var in calibrationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	c.Heating = joinSide(in.SlopeHDD, in.InterceptHDD, in.BestR2AdjHDD, in.BestHDDTemp)
	c.Cooling = joinSide(in.SlopeCDD, in.InterceptCDD, in.BestR2AdjCDD, in.BestCDDTemp)
	return nil
}
