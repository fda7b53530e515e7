package disaggregate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/regression"
	"github.com/raterudder/balancepoint/pkg/types"
)

// Side is heating or cooling.
type Side string

const (
	SideHeating Side = "heating"
	SideCooling Side = "cooling"
)

// active reports whether temp falls in the regime this side models for the
// given balance point. Intervals exactly at the balance point belong to
// neither side.
func (s Side) active(temp, balancePoint float64) bool {
	if s == SideCooling {
		return temp > balancePoint
	}
	return temp < balancePoint
}

// Calibrate sweeps the heating and cooling candidate balance points and keeps,
// per side, the regression of consumption on temperature with the highest
// adjusted R². Sides are independent. A side with an empty range, or whose
// candidates only produce empty or degenerate fits, is reported as
// types.NoFit().
func Calibrate(ctx context.Context, usage, temps types.Series, heating, cooling []float64) types.Calibration {
	samples := Align(usage, temps)
	return types.Calibration{
		Heating: sweep(ctx, SideHeating, samples, heating),
		Cooling: sweep(ctx, SideCooling, samples, cooling),
	}
}

// sweep folds over the candidates in order. Only a strictly better adjusted R²
// replaces the current best so ties keep the earliest candidate.
func sweep(ctx context.Context, side Side, samples []types.Sample, candidates []float64) types.SideFit {
	best := types.NoFit()
	x := make([]float64, 0, len(samples))
	y := make([]float64, 0, len(samples))
	for _, candidate := range candidates {
		x, y = x[:0], y[:0]
		for _, s := range samples {
			if side.active(s.Temp, candidate) {
				x = append(x, s.Temp)
				y = append(y, s.Usage)
			}
		}
		if len(x) == 0 {
			continue
		}

		res, err := regression.Fit(x, y)
		if errors.Is(err, regression.ErrDegenerateFit) {
			log.Ctx(ctx).DebugContext(
				ctx,
				"skipping degenerate balance point candidate",
				slog.String("side", string(side)),
				slog.Float64("candidate", candidate),
				slog.Int("samples", len(x)),
				slog.Any("error", err),
			)
			continue
		} else if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to fit balance point candidate", slog.String("side", string(side)), slog.Float64("candidate", candidate), slog.Any("error", err))
			continue
		}

		log.Ctx(ctx).DebugContext(
			ctx,
			"fitted balance point candidate",
			slog.String("side", string(side)),
			slog.Float64("candidate", candidate),
			slog.Int("samples", res.N),
			slog.Float64("slope", res.Slope),
			slog.Float64("intercept", res.Intercept),
			slog.Float64("adjustedR2", res.AdjustedR2),
		)

		if res.AdjustedR2 > best.AdjustedR2 {
			best = types.SideFit{
				Model: &types.LinearModel{
					Slope:     res.Slope,
					Intercept: res.Intercept,
				},
				BalancePoint: candidate,
				AdjustedR2:   res.AdjustedR2,
				Samples:      res.N,
			}
		}
	}
	return best
}
