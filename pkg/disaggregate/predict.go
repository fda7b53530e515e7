package disaggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/types"
)

// ErrUnresolvedModel is returned by Predict when an interval falls in a
// heating or cooling regime that calibration found no model for.
var ErrUnresolvedModel = errors.New("no calibrated model for temperature regime")

// Predict decomposes each aligned interval into a weather-driven estimate and
// a residual using the calibrated models.
//
// Intervals warmer than the cooling balance point use the cooling model and
// intervals colder than the heating balance point use the heating model; the
// cooling check runs first. The weather-driven part is the model's value
// minus its value at the balance point, capped at the observed usage. Intervals
// between the two balance points are treated as pure baseload: no
// weather-driven usage and a residual of zero.
func Predict(ctx context.Context, usage, temps types.Series, cal types.Calibration) (types.Decomposition, error) {
	samples := Align(usage, temps)
	if len(samples) == 0 && (len(usage) > 0 || len(temps) > 0) {
		log.Ctx(ctx).WarnContext(
			ctx,
			"consumption and temperature share no timestamps",
			slog.Int("usageLen", len(usage)),
			slog.Int("tempLen", len(temps)),
		)
	}

	// value of each model at its own balance point, i.e. with no excess load
	var coolingBase, heatingBase float64
	if cal.Cooling.Model != nil {
		coolingBase = cal.Cooling.Model.At(cal.Cooling.BalancePoint)
	}
	if cal.Heating.Model != nil {
		heatingBase = cal.Heating.Model.At(cal.Heating.BalancePoint)
	}

	d := types.Decomposition{
		Total: make(types.Series, 0, len(samples)),
		Air:   make(types.Series, 0, len(samples)),
		Diff:  make(types.Series, 0, len(samples)),
	}
	for _, s := range samples {
		var predTotal, predAir float64
		switch {
		case s.Temp > cal.Cooling.BalancePoint:
			if cal.Cooling.Model == nil {
				return types.Decomposition{}, unresolved(SideCooling, s)
			}
			predTotal = cal.Cooling.Model.At(s.Temp)
			predAir = predTotal - coolingBase
		case s.Temp < cal.Heating.BalancePoint:
			if cal.Heating.Model == nil {
				return types.Decomposition{}, unresolved(SideHeating, s)
			}
			predTotal = cal.Heating.Model.At(s.Temp)
			predAir = predTotal - heatingBase
		default:
			predTotal = s.Usage
			predAir = 0
		}

		d.Total = append(d.Total, types.Point{TS: s.TS, Value: s.Usage})
		d.Air = append(d.Air, types.Point{TS: s.TS, Value: min(predAir, s.Usage)})
		d.Diff = append(d.Diff, types.Point{TS: s.TS, Value: s.Usage - predTotal})
	}
	return d, nil
}

func unresolved(side Side, s types.Sample) error {
	return fmt.Errorf("%w: %s at %s (temp %g)", ErrUnresolvedModel, side, s.TS.Format(time.RFC3339), s.Temp)
}
