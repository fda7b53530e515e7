package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raterudder/balancepoint/pkg/types"
)

// ErrUnknownProvider is returned when a site's settings name a weather
// provider that is not configured.
var ErrUnknownProvider = errors.New("unknown weather provider")

// Provider defines the interface for fetching outdoor temperatures.
type Provider interface {
	// GetTemperatures returns observed outdoor temperatures in °F within
	// [start, end), ordered by time.
	GetTemperatures(ctx context.Context, start, end time.Time) (types.Series, error)

	// ApplySettings updates the provider using the site's settings.
	ApplySettings(ctx context.Context, settings types.Settings) error
}

// Configured sets up the weather providers and returns a Map.
func Configured() *Map {
	m := NewMap()
	m.baseOpenMeteo = configuredOpenMeteo()
	return m
}

// Map manages weather providers.
type Map struct {
	mu            sync.Mutex
	baseOpenMeteo *OpenMeteo
	providers     map[string]Provider
}

// NewMap creates a new weather Map.
func NewMap() *Map {
	return &Map{
		providers: make(map[string]Provider),
	}
}

// Site returns the weather provider for the given site based on settings.
func (m *Map) Site(ctx context.Context, siteID string, settings types.Settings) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.providers[settings.WeatherProvider]; ok {
		if err := p.ApplySettings(ctx, settings); err != nil {
			return nil, err
		}
		return p, nil
	}

	switch settings.WeatherProvider {
	case ProviderOpenMeteo:
		if m.baseOpenMeteo == nil {
			return nil, fmt.Errorf("%s provider not configured", ProviderOpenMeteo)
		}
		p := &SiteOpenMeteo{
			base:   m.baseOpenMeteo,
			siteID: siteID,
		}
		if err := p.ApplySettings(ctx, settings); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, settings.WeatherProvider)
	}
}

// SetProvider sets a mock provider for testing.
func (m *Map) SetProvider(name string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = provider
}
