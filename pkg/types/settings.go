package types

import (
	"fmt"
	"math"
	"time"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 2

// Settings represents the per-site configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Balance point candidates to sweep (°F), in sweep order. The order
	// decides ties: the earliest candidate wins.
	HeatingCandidatesF []float64 `json:"heatingCandidatesF"`
	CoolingCandidatesF []float64 `json:"coolingCandidatesF"`

	// Weather source for the site's outdoor temperature
	WeatherProvider string  `json:"weatherProvider"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`

	// IANA time zone used to group readings into calendar days
	Timezone string `json:"timezone"`
}

// DefaultHeatingCandidatesF returns the default heating sweep, 50 through 59.
func DefaultHeatingCandidatesF() []float64 {
	return integerRange(50, 60)
}

// DefaultCoolingCandidatesF returns the default cooling sweep, 60 through 69.
func DefaultCoolingCandidatesF() []float64 {
	return integerRange(60, 70)
}

func integerRange(start, end int) []float64 {
	out := make([]float64, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, float64(i))
	}
	return out
}

// Location returns the time zone for day boundaries, UTC if unset.
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone (%s): %w", s.Timezone, err)
	}
	return loc, nil
}

// Validate checks the settings a user can change.
func (s Settings) Validate() error {
	if err := validateCandidates("heatingCandidatesF", s.HeatingCandidatesF); err != nil {
		return err
	}
	if err := validateCandidates("coolingCandidatesF", s.CoolingCandidatesF); err != nil {
		return err
	}
	if err := ValidateLocation(s.Latitude, s.Longitude); err != nil {
		return err
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// validateCandidates requires finite candidates in strictly ascending order.
// An empty range is allowed and disables that side.
func validateCandidates(name string, candidates []float64) error {
	for i, c := range candidates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%s[%d] must be finite", name, i)
		}
		if i > 0 && c <= candidates[i-1] {
			return fmt.Errorf("%s must be strictly ascending (%g after %g)", name, c, candidates[i-1])
		}
	}
	return nil
}

// ValidateLocation checks latitude and longitude are in range.
func ValidateLocation(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90: %g", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180: %g", lon)
	}
	return nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial sweep ranges
			if len(s.HeatingCandidatesF) == 0 {
				s.HeatingCandidatesF = DefaultHeatingCandidatesF()
				migrated = true
			}
			if len(s.CoolingCandidatesF) == 0 {
				s.CoolingCandidatesF = DefaultCoolingCandidatesF()
				migrated = true
			}
		case 2:
			// version 2: weather providers
			if s.WeatherProvider == "" {
				s.WeatherProvider = "open_meteo"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
