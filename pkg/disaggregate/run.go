package disaggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/resample"
	"github.com/raterudder/balancepoint/pkg/types"
)

// Options configures Run.
type Options struct {
	// Candidate balance points, in sweep order. Nil means the defaults; a
	// non-nil empty slice disables that side.
	HeatingCandidates []float64
	CoolingCandidates []float64

	// Location decides calendar day boundaries when resampling. Nil is UTC.
	Location *time.Location

	// SkipResample calibrates on the series as given instead of daily
	// consumption sums and daily mean temperatures.
	SkipResample bool
}

func (o Options) candidates() (heating, cooling []float64) {
	heating, cooling = o.HeatingCandidates, o.CoolingCandidates
	if heating == nil {
		heating = types.DefaultHeatingCandidatesF()
	}
	if cooling == nil {
		cooling = types.DefaultCoolingCandidatesF()
	}
	return heating, cooling
}

func (o Options) resample(usage, temps types.Series) (types.Series, types.Series) {
	if o.SkipResample {
		return usage, temps
	}
	return resample.Daily(usage, o.Location, resample.Sum), resample.Daily(temps, o.Location, resample.Mean)
}

// Result is the output of a full calibrate and predict run.
type Result struct {
	Calibration   types.Calibration   `json:"calibration"`
	Decomposition types.Decomposition `json:"decomposition"`
}

// CalibrateDaily resamples and calibrates exactly as Run does, without the
// decomposition.
func CalibrateDaily(ctx context.Context, usage, temps types.Series, opts Options) types.Calibration {
	usage, temps = opts.resample(usage, temps)
	heating, cooling := opts.candidates()
	return Calibrate(ctx, usage, temps, heating, cooling)
}

// Run resamples consumption to daily sums and temperature to daily means,
// calibrates the balance points, and decomposes every aligned day.
func Run(ctx context.Context, usage, temps types.Series, opts Options) (Result, error) {
	usage, temps = opts.resample(usage, temps)
	heating, cooling := opts.candidates()

	cal := Calibrate(ctx, usage, temps, heating, cooling)
	log.Ctx(ctx).DebugContext(
		ctx,
		"calibrated balance points",
		slog.Bool("heatingFound", cal.Heating.Found()),
		slog.Float64("heatingBalancePoint", cal.Heating.BalancePoint),
		slog.Bool("coolingFound", cal.Cooling.Found()),
		slog.Float64("coolingBalancePoint", cal.Cooling.BalancePoint),
	)

	d, err := Predict(ctx, usage, temps, cal)
	if err != nil {
		return Result{Calibration: cal}, fmt.Errorf("failed to predict: %w", err)
	}
	return Result{
		Calibration:   cal,
		Decomposition: d,
	}, nil
}
