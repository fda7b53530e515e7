package storagemock

import (
	"context"
	"time"

	"github.com/raterudder/balancepoint/pkg/storage"
	"github.com/raterudder/balancepoint/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	args := m.Called(ctx, siteID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	args := m.Called(ctx, siteID, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) UpsertUsage(ctx context.Context, siteID string, usage types.Series) error {
	args := m.Called(ctx, siteID, usage)
	return args.Error(0)
}

func (m *MockDatabase) UpsertTemperatures(ctx context.Context, siteID string, temps types.Series) error {
	args := m.Called(ctx, siteID, temps)
	return args.Error(0)
}

func (m *MockDatabase) GetUsageHistory(ctx context.Context, siteID string, start, end time.Time) (types.Series, error) {
	args := m.Called(ctx, siteID, start, end)
	if s, ok := args.Get(0).(types.Series); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetTemperatureHistory(ctx context.Context, siteID string, start, end time.Time) (types.Series, error) {
	args := m.Called(ctx, siteID, start, end)
	if s, ok := args.Get(0).(types.Series); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetLatestTemperatureTime(ctx context.Context, siteID string) (time.Time, error) {
	args := m.Called(ctx, siteID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockDatabase) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	args := m.Called(ctx, siteID)
	return args.Get(0).(types.Site), args.Error(1)
}

func (m *MockDatabase) CreateSite(ctx context.Context, siteID string, site types.Site) error {
	args := m.Called(ctx, siteID, site)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
