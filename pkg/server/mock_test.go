package server

import (
	"context"
	"time"

	"github.com/raterudder/balancepoint/pkg/storage/storagemock"
	"github.com/raterudder/balancepoint/pkg/types"
	"github.com/raterudder/balancepoint/pkg/weather"
	"github.com/stretchr/testify/mock"
)

const mockWeatherProvider = "mock"

type mockWeather struct {
	mock.Mock
}

func (m *mockWeather) GetTemperatures(ctx context.Context, start, end time.Time) (types.Series, error) {
	args := m.Called(ctx, start, end)
	if s, ok := args.Get(0).(types.Series); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWeather) ApplySettings(ctx context.Context, settings types.Settings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

// newTestServer returns a Server with auth bypassed and a mock weather
// provider registered under mockWeatherProvider.
func newTestServer() (*Server, *storagemock.MockDatabase, *mockWeather) {
	db := &storagemock.MockDatabase{}
	mw := &mockWeather{}
	wm := weather.NewMap()
	wm.SetProvider(mockWeatherProvider, mw)
	return &Server{
		weather:    wm,
		storage:    db,
		bypassAuth: true,
		singleSite: true,
	}, db, mw
}

// testSettings are current-version settings using the mock weather provider.
func testSettings() types.Settings {
	return types.Settings{
		HeatingCandidatesF: types.DefaultHeatingCandidatesF(),
		CoolingCandidatesF: types.DefaultCoolingCandidatesF(),
		WeatherProvider:    mockWeatherProvider,
		Latitude:           41.88,
		Longitude:          -87.63,
	}
}
