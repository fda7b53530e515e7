package disaggregate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/raterudder/balancepoint/pkg/regression"
	"github.com/raterudder/balancepoint/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time {
	return day0.AddDate(0, 0, i)
}

// syntheticHouse returns one day per integer temperature from 30°F to 90°F.
// Baseload is 20 kWh, heating adds 1 kWh per degree below 55 and cooling adds
// 0.8 kWh per degree above 65.
func syntheticHouse() (usage, temps types.Series) {
	for i, temp := 0, 30.0; temp <= 90; i, temp = i+1, temp+1 {
		wh := 20000.0
		if temp < 55 {
			wh += (55 - temp) * 1000
		}
		if temp > 65 {
			wh += (temp - 65) * 800
		}
		usage = append(usage, types.Point{TS: day(i), Value: wh})
		temps = append(temps, types.Point{TS: day(i), Value: temp})
	}
	return usage, temps
}

// bruteForceBest independently fits every candidate and returns the first
// candidate with the highest adjusted R².
func bruteForceBest(usage, temps types.Series, side Side, candidates []float64) (float64, float64) {
	bestTemp, bestR2 := 0.0, math.Inf(-1)
	for _, c := range candidates {
		var x, y []float64
		for _, s := range Align(usage, temps) {
			if side.active(s.Temp, c) {
				x = append(x, s.Temp)
				y = append(y, s.Usage)
			}
		}
		res, err := regression.Fit(x, y)
		if err != nil {
			continue
		}
		if res.AdjustedR2 > bestR2 {
			bestTemp, bestR2 = c, res.AdjustedR2
		}
	}
	return bestTemp, bestR2
}

func TestCalibrate(t *testing.T) {
	ctx := context.Background()
	usage, temps := syntheticHouse()
	heating := types.DefaultHeatingCandidatesF()
	cooling := types.DefaultCoolingCandidatesF()

	t.Run("Recovers Synthetic Models", func(t *testing.T) {
		cal := Calibrate(ctx, usage, temps, heating, cooling)

		require.True(t, cal.Heating.Found())
		assert.InDelta(t, -1000, cal.Heating.Model.Slope, 1e-6)
		assert.InDelta(t, 75000, cal.Heating.Model.Intercept, 1e-4)
		// 50 through 56 all select an exactly linear set of days so the
		// winner among them is decided by rounding
		wantTemp, wantR2 := bruteForceBest(usage, temps, SideHeating, heating)
		assert.Equal(t, wantTemp, cal.Heating.BalancePoint)
		assert.Equal(t, wantR2, cal.Heating.AdjustedR2)
		assert.GreaterOrEqual(t, cal.Heating.BalancePoint, 50.0)
		assert.LessOrEqual(t, cal.Heating.BalancePoint, 56.0)
		assert.InDelta(t, 1.0, cal.Heating.AdjustedR2, 1e-9)

		require.True(t, cal.Cooling.Found())
		assert.InDelta(t, 800, cal.Cooling.Model.Slope, 1e-6)
		assert.InDelta(t, -32000, cal.Cooling.Model.Intercept, 1e-4)
		// the 65°F day lies on the cooling line so 64 already fits exactly
		wantTemp, wantR2 = bruteForceBest(usage, temps, SideCooling, cooling)
		assert.Equal(t, wantTemp, cal.Cooling.BalancePoint)
		assert.Equal(t, wantR2, cal.Cooling.AdjustedR2)
		assert.GreaterOrEqual(t, cal.Cooling.BalancePoint, 64.0)
		assert.LessOrEqual(t, cal.Cooling.BalancePoint, 69.0)
		assert.InDelta(t, 1.0, cal.Cooling.AdjustedR2, 1e-9)
	})

	t.Run("Best Is Best", func(t *testing.T) {
		// perturb usage so fits are imperfect and a unique winner exists
		noisy := make(types.Series, len(usage))
		for i, p := range usage {
			noisy[i] = types.Point{TS: p.TS, Value: p.Value + float64((i*7919)%13)*150}
		}
		cal := Calibrate(ctx, noisy, temps, heating, cooling)

		wantTemp, wantR2 := bruteForceBest(noisy, temps, SideHeating, heating)
		assert.Equal(t, wantTemp, cal.Heating.BalancePoint)
		assert.Equal(t, wantR2, cal.Heating.AdjustedR2)

		wantTemp, wantR2 = bruteForceBest(noisy, temps, SideCooling, cooling)
		assert.Equal(t, wantTemp, cal.Cooling.BalancePoint)
		assert.Equal(t, wantR2, cal.Cooling.AdjustedR2)
	})

	t.Run("Ties Keep First Candidate", func(t *testing.T) {
		// 65.5 and 65.2 select the same days, so their fits are identical
		cal := Calibrate(ctx, usage, temps, nil, []float64{65.5, 65.2})
		assert.Equal(t, 65.5, cal.Cooling.BalancePoint)

		cal = Calibrate(ctx, usage, temps, nil, []float64{65.2, 65.5})
		assert.Equal(t, 65.2, cal.Cooling.BalancePoint)
	})

	t.Run("Empty Ranges", func(t *testing.T) {
		cal := Calibrate(ctx, usage, temps, nil, []float64{})
		for _, side := range []types.SideFit{cal.Heating, cal.Cooling} {
			assert.Nil(t, side.Model)
			assert.Equal(t, 0.0, side.BalancePoint)
			assert.True(t, math.IsInf(side.AdjustedR2, -1))
		}
	})

	t.Run("Candidates With No Active Days", func(t *testing.T) {
		cal := Calibrate(ctx, usage, temps, []float64{10, 20}, []float64{95, 100})
		assert.False(t, cal.Heating.Found())
		assert.False(t, cal.Cooling.Found())
	})

	t.Run("Single Point Fits Are Degenerate", func(t *testing.T) {
		usage := types.Series{
			{TS: day(0), Value: 100},
			{TS: day(1), Value: 120},
			{TS: day(2), Value: 90},
		}
		temps := types.Series{
			{TS: day(0), Value: 40},
			{TS: day(1), Value: 45},
			{TS: day(2), Value: 75},
		}
		cal := Calibrate(ctx, usage, temps, []float64{42, 43, 44}, []float64{70, 71})

		assert.Nil(t, cal.Heating.Model)
		assert.Nil(t, cal.Cooling.Model)
		assert.Equal(t, 0.0, cal.Heating.BalancePoint)
		assert.Equal(t, 0.0, cal.Cooling.BalancePoint)
		assert.True(t, math.IsInf(cal.Heating.AdjustedR2, -1))
		assert.True(t, math.IsInf(cal.Cooling.AdjustedR2, -1))
	})

	t.Run("Unsorted Input", func(t *testing.T) {
		reversed := make(types.Series, len(usage))
		for i, p := range usage {
			reversed[len(usage)-1-i] = p
		}
		assert.Equal(t,
			Calibrate(ctx, usage, temps, heating, cooling),
			Calibrate(ctx, reversed, temps, heating, cooling),
		)
	})

	t.Run("Deterministic", func(t *testing.T) {
		first := Calibrate(ctx, usage, temps, heating, cooling)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Calibrate(ctx, usage, temps, heating, cooling))
		}
	})
}

func TestAlign(t *testing.T) {
	usage := types.Series{
		{TS: day(3), Value: 3},
		{TS: day(1), Value: 1},
		{TS: day(2), Value: 2},
		{TS: day(5), Value: 5},
	}
	temps := types.Series{
		{TS: day(2), Value: 52},
		{TS: day(1), Value: 51},
		{TS: day(3), Value: 53},
		{TS: day(4), Value: 54},
	}

	samples := Align(usage, temps)
	assert.Equal(t, []types.Sample{
		{TS: day(1), Usage: 1, Temp: 51},
		{TS: day(2), Usage: 2, Temp: 52},
		{TS: day(3), Usage: 3, Temp: 53},
	}, samples)

	assert.Empty(t, Align(usage, types.Series{{TS: day(9), Value: 1}}))
}

func testCalibration() types.Calibration {
	return types.Calibration{
		Heating: types.SideFit{
			Model:        &types.LinearModel{Slope: -1000, Intercept: 75000},
			BalancePoint: 55,
			AdjustedR2:   0.9,
		},
		Cooling: types.SideFit{
			Model:        &types.LinearModel{Slope: 800, Intercept: -32000},
			BalancePoint: 65,
			AdjustedR2:   0.8,
		},
	}
}

func TestPredict(t *testing.T) {
	ctx := context.Background()

	t.Run("Branches", func(t *testing.T) {
		usage := types.Series{
			{TS: day(0), Value: 36000}, // heating
			{TS: day(1), Value: 10000}, // cooling, clamped
			{TS: day(2), Value: 21000}, // neutral
			{TS: day(3), Value: 25000}, // exactly at cooling balance point
			{TS: day(4), Value: 30000}, // exactly at heating balance point
		}
		temps := types.Series{
			{TS: day(0), Value: 40},
			{TS: day(1), Value: 80},
			{TS: day(2), Value: 60},
			{TS: day(3), Value: 65},
			{TS: day(4), Value: 55},
		}
		d, err := Predict(ctx, usage, temps, testCalibration())
		require.NoError(t, err)
		require.Equal(t, 5, d.Len())

		assert.Equal(t, usage.Values(), d.Total.Values())
		// heating: predicted 35000, base 20000
		assert.InDelta(t, 15000, d.Air[0].Value, 1e-9)
		assert.InDelta(t, 1000, d.Diff[0].Value, 1e-9)
		// cooling: predicted 32000, air 12000 capped at usage
		assert.Equal(t, 10000.0, d.Air[1].Value)
		assert.InDelta(t, -22000, d.Diff[1].Value, 1e-9)
		// neutral zone is all baseload
		for _, i := range []int{2, 3, 4} {
			assert.Equal(t, 0.0, d.Air[i].Value, "air at %d", i)
			assert.Equal(t, 0.0, d.Diff[i].Value, "diff at %d", i)
		}
	})

	t.Run("Overlapping Balance Points Prefer Cooling", func(t *testing.T) {
		cal := testCalibration()
		cal.Cooling.BalancePoint = 55
		cal.Heating.BalancePoint = 65
		d, err := Predict(ctx,
			types.Series{{TS: day(0), Value: 30000}},
			types.Series{{TS: day(0), Value: 60}},
			cal,
		)
		require.NoError(t, err)
		// cooling: predicted 800*60-32000 = 16000, base at 55 is 12000
		assert.InDelta(t, 4000, d.Air[0].Value, 1e-9)
		assert.InDelta(t, 14000, d.Diff[0].Value, 1e-9)

		// without a cooling model the overlap is unresolved rather than
		// falling through to heating
		cal.Cooling.Model = nil
		_, err = Predict(ctx,
			types.Series{{TS: day(0), Value: 30000}},
			types.Series{{TS: day(0), Value: 60}},
			cal,
		)
		assert.ErrorIs(t, err, ErrUnresolvedModel)
	})

	t.Run("Negative Air Is Kept", func(t *testing.T) {
		// a day just above the balance point with a negative intercept shift
		cal := testCalibration()
		cal.Cooling.Model = &types.LinearModel{Slope: -10, Intercept: 5000}
		d, err := Predict(ctx,
			types.Series{{TS: day(0), Value: 4000}},
			types.Series{{TS: day(0), Value: 70}},
			cal,
		)
		require.NoError(t, err)
		assert.InDelta(t, -50, d.Air[0].Value, 1e-9)
		assert.InDelta(t, -300, d.Diff[0].Value, 1e-9)
	})

	t.Run("Missing Cooling Model", func(t *testing.T) {
		cal := testCalibration()
		cal.Cooling = types.NoFit()
		cal.Cooling.BalancePoint = 65
		_, err := Predict(ctx,
			types.Series{{TS: day(0), Value: 1}, {TS: day(1), Value: 2}},
			types.Series{{TS: day(0), Value: 60}, {TS: day(1), Value: 70}},
			cal,
		)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnresolvedModel))
		assert.Contains(t, err.Error(), "cooling")
	})

	t.Run("Missing Heating Model", func(t *testing.T) {
		cal := testCalibration()
		cal.Heating = types.NoFit()
		cal.Heating.BalancePoint = 55
		_, err := Predict(ctx,
			types.Series{{TS: day(0), Value: 1}},
			types.Series{{TS: day(0), Value: 30}},
			cal,
		)
		assert.ErrorIs(t, err, ErrUnresolvedModel)
	})

	t.Run("Missing Model Not Needed", func(t *testing.T) {
		cal := testCalibration()
		cal.Heating = types.NoFit()
		cal.Heating.BalancePoint = 55
		d, err := Predict(ctx,
			types.Series{{TS: day(0), Value: 100}},
			types.Series{{TS: day(0), Value: 60}},
			cal,
		)
		require.NoError(t, err)
		assert.Equal(t, 1, d.Len())
	})

	t.Run("No Common Timestamps", func(t *testing.T) {
		d, err := Predict(ctx,
			types.Series{{TS: day(0), Value: 100}},
			types.Series{{TS: day(1), Value: 60}},
			testCalibration(),
		)
		require.NoError(t, err)
		assert.Equal(t, 0, d.Len())
		assert.Empty(t, d.Air)
		assert.Empty(t, d.Diff)
	})

	t.Run("Index Alignment", func(t *testing.T) {
		usage := types.Series{
			{TS: day(4), Value: 24000},
			{TS: day(0), Value: 40000},
			{TS: day(2), Value: 22000},
			{TS: day(7), Value: 1},
		}
		temps := types.Series{
			{TS: day(2), Value: 60},
			{TS: day(0), Value: 35},
			{TS: day(4), Value: 75},
			{TS: day(5), Value: 99},
		}
		d, err := Predict(ctx, usage, temps, testCalibration())
		require.NoError(t, err)

		want := []time.Time{day(0), day(2), day(4)}
		for _, s := range []types.Series{d.Total, d.Air, d.Diff} {
			require.Len(t, s, len(want))
			for i, p := range s {
				assert.True(t, p.TS.Equal(want[i]))
			}
		}
	})

	t.Run("Air Never Exceeds Total", func(t *testing.T) {
		usage, temps := syntheticHouse()
		// scale usage down so the models over-predict on every day
		for i := range usage {
			usage[i].Value /= 4
		}
		d, err := Predict(ctx, usage, temps, testCalibration())
		require.NoError(t, err)
		for i := range d.Total {
			assert.LessOrEqual(t, d.Air[i].Value, d.Total[i].Value)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		usage, temps := syntheticHouse()
		first, err := Predict(ctx, usage, temps, testCalibration())
		require.NoError(t, err)
		second, err := Predict(ctx, usage, temps, testCalibration())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Hourly Input", func(t *testing.T) {
		daily, dailyTemps := syntheticHouse()
		var usage, temps types.Series
		for i, p := range daily {
			for h := 0; h < 24; h++ {
				ts := p.TS.Add(time.Duration(h) * time.Hour)
				usage = append(usage, types.Point{TS: ts, Value: p.Value / 24})
				// swing ±5 degrees around the daily mean
				temps = append(temps, types.Point{TS: ts, Value: dailyTemps[i].Value + 5*math.Sin(2*math.Pi*float64(h)/24)})
			}
		}

		res, err := Run(ctx, usage, temps, Options{})
		require.NoError(t, err)

		require.True(t, res.Calibration.Heating.Found())
		require.True(t, res.Calibration.Cooling.Found())
		assert.InDelta(t, -1000, res.Calibration.Heating.Model.Slope, 1e-3)
		assert.InDelta(t, 800, res.Calibration.Cooling.Model.Slope, 1e-3)

		require.Equal(t, len(daily), res.Decomposition.Len())
		for i, p := range res.Decomposition.Total {
			assert.True(t, p.TS.Equal(daily[i].TS))
			assert.InDelta(t, daily[i].Value, p.Value, 1e-6)
		}
	})

	t.Run("Skip Resample", func(t *testing.T) {
		usage, temps := syntheticHouse()
		res, err := Run(ctx, usage, temps, Options{SkipResample: true})
		require.NoError(t, err)
		assert.Equal(t, Calibrate(ctx, usage, temps, types.DefaultHeatingCandidatesF(), types.DefaultCoolingCandidatesF()), res.Calibration)
		assert.Equal(t, len(usage), res.Decomposition.Len())
	})

	t.Run("Empty Range Disables Side", func(t *testing.T) {
		usage, temps := syntheticHouse()
		cooling := types.DefaultCoolingCandidatesF()

		res, err := Run(ctx, usage, temps, Options{
			HeatingCandidates: []float64{},
			CoolingCandidates: cooling,
			SkipResample:      true,
		})
		require.NoError(t, err)
		assert.False(t, res.Calibration.Heating.Found())
		assert.Equal(t, 0.0, res.Calibration.Heating.BalancePoint)
		assert.True(t, math.IsInf(res.Calibration.Heating.AdjustedR2, -1))
		assert.True(t, res.Calibration.Cooling.Found())
		assert.Equal(t, Calibrate(ctx, usage, temps, []float64{}, cooling), res.Calibration)

		// with no heating balance point every cold day is baseload
		for i, p := range temps {
			if p.Value < 55 {
				assert.Equal(t, 0.0, res.Decomposition.Air[i].Value, "air at %v", p.Value)
			}
		}
	})

	t.Run("Nil Range Uses Defaults", func(t *testing.T) {
		usage, temps := syntheticHouse()
		cal := CalibrateDaily(ctx, usage, temps, Options{SkipResample: true})
		assert.Equal(t, Calibrate(ctx, usage, temps, types.DefaultHeatingCandidatesF(), types.DefaultCoolingCandidatesF()), cal)
	})

	t.Run("CalibrateDaily Matches Run", func(t *testing.T) {
		usage, temps := syntheticHouse()
		opts := Options{HeatingCandidates: []float64{}, CoolingCandidates: []float64{66, 67}}
		res, _ := Run(ctx, usage, temps, opts)
		assert.Equal(t, res.Calibration, CalibrateDaily(ctx, usage, temps, opts))
	})

	t.Run("Unresolved Model Keeps Calibration", func(t *testing.T) {
		usage := types.Series{
			{TS: day(0), Value: 100},
			{TS: day(1), Value: 120},
			{TS: day(2), Value: 90},
		}
		temps := types.Series{
			{TS: day(0), Value: 40},
			{TS: day(1), Value: 45},
			{TS: day(2), Value: 75},
		}
		res, err := Run(ctx, usage, temps, Options{
			HeatingCandidates: []float64{42, 43, 44},
			CoolingCandidates: []float64{70, 71},
		})
		assert.ErrorIs(t, err, ErrUnresolvedModel)
		assert.False(t, res.Calibration.Heating.Found())
		assert.False(t, res.Calibration.Cooling.Found())
	})
}
