package resample

import (
	"testing"
	"time"

	"github.com/raterudder/balancepoint/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaily(t *testing.T) {
	day1 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	hourly := types.Series{
		{TS: day2.Add(3 * time.Hour), Value: 30},
		{TS: day1.Add(1 * time.Hour), Value: 10},
		{TS: day1.Add(2 * time.Hour), Value: 20},
		{TS: day2.Add(23 * time.Hour), Value: 50},
	}

	t.Run("Sum", func(t *testing.T) {
		out := Daily(hourly, time.UTC, Sum)
		assert.Equal(t, types.Series{
			{TS: day1, Value: 30},
			{TS: day2, Value: 80},
		}, out)
	})

	t.Run("Mean", func(t *testing.T) {
		out := Daily(hourly, time.UTC, Mean)
		assert.Equal(t, types.Series{
			{TS: day1, Value: 15},
			{TS: day2, Value: 40},
		}, out)
	})

	t.Run("Location Shifts Day Boundaries", func(t *testing.T) {
		chicago, err := time.LoadLocation("America/Chicago")
		require.NoError(t, err)

		// 02:00 UTC on Jan 11 is 20:00 on Jan 10 in Chicago
		out := Daily(types.Series{{TS: day2.Add(2 * time.Hour), Value: 7}}, chicago, Sum)
		require.Len(t, out, 1)
		assert.True(t, out[0].TS.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, chicago)))
		assert.Equal(t, 7.0, out[0].Value)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, Daily(nil, nil, Mean))
	})
}

func TestAggregationString(t *testing.T) {
	assert.Equal(t, "sum", Sum.String())
	assert.Equal(t, "mean", Mean.String())
}
