package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/balancepoint/pkg/types"
)

var (
	ErrSiteNotFound = errors.New("site not found")
)

// Database defines the interface for persisting meter and weather history and
// retrieving settings.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, siteID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error

	// Data Persistence
	// UpsertUsage adds or updates consumption readings (Wh per interval).
	UpsertUsage(ctx context.Context, siteID string, usage types.Series) error
	// UpsertTemperatures adds or updates outdoor temperatures (°F).
	UpsertTemperatures(ctx context.Context, siteID string, temps types.Series) error

	// History
	GetUsageHistory(ctx context.Context, siteID string, start, end time.Time) (types.Series, error)
	GetTemperatureHistory(ctx context.Context, siteID string, start, end time.Time) (types.Series, error)
	GetLatestTemperatureTime(ctx context.Context, siteID string) (time.Time, error)

	// Sites
	GetSite(ctx context.Context, siteID string) (types.Site, error)
	CreateSite(ctx context.Context, siteID string, site types.Site) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
