package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/balancepoint/pkg/common"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/types"
)

// ProviderOpenMeteo is the settings name of the Open-Meteo provider.
const ProviderOpenMeteo = "open_meteo"

const openMeteoCacheTTL = 10 * time.Minute

// OpenMeteo fetches historical hourly temperatures from the Open-Meteo
// archive API. It is shared by every site and caches responses by request.
type OpenMeteo struct {
	apiURL string
	client *http.Client

	mu    sync.Mutex
	cache map[string]openMeteoCacheEntry
}

type openMeteoCacheEntry struct {
	fetched time.Time
	temps   types.Series
}

// configuredOpenMeteo sets up flags for Open-Meteo and returns the instance.
func configuredOpenMeteo() *OpenMeteo {
	o := &OpenMeteo{
		client: common.HTTPClient(time.Minute, ProviderOpenMeteo),
		cache:  make(map[string]openMeteoCacheEntry),
	}
	apiURL := lflag.String("open-meteo-api-url", "https://archive-api.open-meteo.com/v1/archive", "URL for the Open-Meteo historical weather API")

	lflag.Do(func() {
		o.apiURL = *apiURL
		if err := o.Validate(); err != nil {
			panic(fmt.Sprintf("open-meteo validation failed: %v", err))
		}
	})

	return o
}

// Validate ensures the configuration is valid.
func (o *OpenMeteo) Validate() error {
	if o.apiURL == "" {
		return fmt.Errorf("open-meteo-api-url is required")
	}
	if _, err := url.Parse(o.apiURL); err != nil {
		return fmt.Errorf("failed to parse open-meteo url (%s): %w", o.apiURL, err)
	}
	return nil
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []int64    `json:"time"`
		Temperature2M []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// fetch returns hourly temperatures for the whole UTC days covering
// [start, end). Results are cached for openMeteoCacheTTL.
func (o *OpenMeteo) fetch(ctx context.Context, lat, lon float64, start, end time.Time) (types.Series, error) {
	startDate := start.UTC().Format(time.DateOnly)
	endDate := end.UTC().Format(time.DateOnly)
	key := fmt.Sprintf("%.4f,%.4f,%s,%s", lat, lon, startDate, endDate)

	now := time.Now()
	o.mu.Lock()
	if e, ok := o.cache[key]; ok && now.Sub(e.fetched) < openMeteoCacheTTL {
		o.mu.Unlock()
		return e.temps, nil
	}
	o.mu.Unlock()

	u, err := url.Parse(o.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	params.Set("hourly", "temperature_2m")
	params.Set("temperature_unit", "fahrenheit")
	params.Set("timeformat", "unixtime")
	params.Set("timezone", "GMT")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching temperatures from open-meteo", slog.String("url", u.String()))

	resp, err := o.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch temperatures", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch temperatures: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo api returned status: %d", resp.StatusCode)
	}

	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode open-meteo response", slog.Any("error", err))
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(data.Hourly.Time) != len(data.Hourly.Temperature2M) {
		return nil, fmt.Errorf("open-meteo returned %d times but %d temperatures", len(data.Hourly.Time), len(data.Hourly.Temperature2M))
	}

	temps := make(types.Series, 0, len(data.Hourly.Time))
	var missing int
	for i, ts := range data.Hourly.Time {
		// recent hours are null until the archive catches up
		v := data.Hourly.Temperature2M[i]
		if v == nil || math.IsNaN(*v) {
			missing++
			continue
		}
		temps = append(temps, types.Point{TS: time.Unix(ts, 0).UTC(), Value: *v})
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched temperatures",
		slog.Int("count", len(temps)),
		slog.Int("missing", missing),
		slog.String("start", startDate),
		slog.String("end", endDate),
	)

	o.mu.Lock()
	for k, e := range o.cache {
		if now.Sub(e.fetched) >= openMeteoCacheTTL {
			delete(o.cache, k)
		}
	}
	o.cache[key] = openMeteoCacheEntry{fetched: now, temps: temps}
	o.mu.Unlock()

	return temps, nil
}

// SiteOpenMeteo is the Open-Meteo provider bound to a site's location.
type SiteOpenMeteo struct {
	base   *OpenMeteo
	siteID string

	mu        sync.Mutex
	latitude  float64
	longitude float64
}

// ApplySettings updates the location temperatures are fetched for.
func (s *SiteOpenMeteo) ApplySettings(ctx context.Context, settings types.Settings) error {
	if err := types.ValidateLocation(settings.Latitude, settings.Longitude); err != nil {
		return fmt.Errorf("invalid location for site %s: %w", s.siteID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latitude = settings.Latitude
	s.longitude = settings.Longitude
	return nil
}

// GetTemperatures returns hourly temperatures in [start, end).
func (s *SiteOpenMeteo) GetTemperatures(ctx context.Context, start, end time.Time) (types.Series, error) {
	if !end.After(start) {
		return nil, nil
	}
	s.mu.Lock()
	lat, lon := s.latitude, s.longitude
	s.mu.Unlock()

	// end is exclusive so the last day requested is the one containing end-1
	all, err := s.base.fetch(ctx, lat, lon, start, end.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	temps := make(types.Series, 0, len(all))
	for _, p := range all {
		if p.TS.Before(start) || !p.TS.Before(end) {
			continue
		}
		temps = append(temps, p)
	}
	return temps, nil
}
